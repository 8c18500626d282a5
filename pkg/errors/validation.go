package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxIdentifierLen = 256
	maxPathLen       = 500
)

func hasControl(s string) bool {
	return strings.IndexFunc(s, unicode.IsControl) >= 0
}

// ValidateIdentifier checks a gene, sample or level identifier. Identifiers
// become TSV cells and SVG text, so they must be non-empty, at most 256
// bytes and free of control characters.
func ValidateIdentifier(kind, id string) error {
	switch {
	case id == "":
		return New(ErrCodeInvalidInput, "%s identifier cannot be empty", kind)
	case len(id) > maxIdentifierLen:
		return New(ErrCodeInvalidInput, "%s identifier too long (max %d characters)", kind, maxIdentifierLen)
	case hasControl(id):
		return New(ErrCodeInvalidInput, "%s identifier %q contains control characters", kind, id)
	}
	return nil
}

var bundleName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidateBundleName checks the name of a builtin dataset.
func ValidateBundleName(name string) error {
	if !bundleName.MatchString(name) {
		return New(ErrCodeInvalidBundle, "invalid bundle name: %q", name)
	}
	return nil
}

var pathRules = []struct {
	bad func(string) bool
	msg string
}{
	{func(p string) bool { return p == "" }, "path cannot be empty"},
	{func(p string) bool { return len(p) > maxPathLen }, "path too long"},
	{hasControl, "path contains invalid characters"},
	{func(p string) bool { return strings.HasPrefix(p, "/") }, "path must be relative"},
	{func(p string) bool { return strings.Contains(p, "..") }, "path cannot contain .."},
	{func(p string) bool { return strings.Contains(p, `\`) }, "path cannot contain backslashes"},
}

// ValidatePath checks a slash-separated path relative to a bundle or output
// directory. It must not escape that directory.
func ValidatePath(path string) error {
	for _, r := range pathRules {
		if r.bad(path) {
			return New(ErrCodeInvalidPath, "%s: %q", r.msg, path)
		}
	}
	return nil
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Wrap(ErrCodeInvalidInput, err, "invalid URL %q", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return New(ErrCodeInvalidInput, "URL %q must use http or https", rawURL)
	}
	if u.Host == "" {
		return New(ErrCodeInvalidInput, "URL %q has no host", rawURL)
	}
	return nil
}
