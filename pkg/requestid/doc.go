// Package requestid attaches a correlation id to every HTTP request.
//
// A client supplied X-Request-ID is reused when it is well formed; otherwise a
// UUID is generated. The id is stored in the request context, echoed in the
// response and exposed to slog through LoggerExtractor. Hooks let the API
// reuse the id as the trace id of guard decisions.
package requestid
