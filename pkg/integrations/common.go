package integrations

import (
	"net/http"
	"strings"
	"time"

	"github.com/matzehuels/exprflow/pkg/cache"
)

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 30 * time.Second

// Re-exported cache sentinels so service packages need a single import.
var (
	// ErrNotFound is returned when the remote resource does not exist.
	ErrNotFound = cache.ErrNotFound

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = cache.ErrNetwork
)

// NewHTTPClient creates an HTTP client with the given timeout.
// A non-positive timeout falls back to [DefaultTimeout].
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// NormalizeID trims whitespace and strips an Ensembl version suffix
// ("ENSG00000141510.17" becomes "ENSG00000141510").
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "ENS") {
		if i := strings.LastIndexByte(id, '.'); i > 0 {
			return id[:i]
		}
	}
	return id
}

// Batches splits ids into consecutive chunks of at most size elements.
func Batches(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
