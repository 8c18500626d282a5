// Package integrations provides the shared HTTP client used by remote
// annotation services.
//
// Each service lives in its own subpackage (currently [biomart]). They all
// build on [Client], which bundles:
//   - response caching through [cache.Cache] with a per-client TTL
//   - retry with exponential backoff for network and 5xx failures
//   - a token-bucket rate limiter so batch lookups stay under the
//     service's request budget
//   - request/response events for [observability.HTTP]
//
// A 404 maps to [ErrNotFound]; connection failures and 5xx responses map to
// a retryable [ErrNetwork].
//
// [biomart]: github.com/matzehuels/exprflow/pkg/integrations/biomart
package integrations
