// Package editor provides the rules editor: a small HTTP service on its own
// port that shows the active rule script and installs new ones.
//
// A browser gets an HTML page with the script in a textarea. Tools can use
// the plain-text API:
//
//	GET  /rules    current script as text/plain
//	PUT  /rules    install the request body; 422 with line and column on error
//	GET  /status   active version, install time and the last rejected submission
//	GET  /health   liveness
//	GET  /metrics  Prometheus text exposition
//
// With a request log attached (WithRequestLog), recent mock requests are
// listed on GET /requests, fetched by ID on GET /requests/{id} and cleared
// with DELETE /requests.
//
// Every submission goes through store.Submit, so a script that fails to
// compile never replaces the active one.
package editor
