// Package chaos implements the wire-level faults a rule can ask for.
//
// The writers wrap an http.ResponseWriter and alter what reaches the client:
// TruncatingWriter cuts the body short while the declared Content-Length
// stays unchanged, and PacedWriter spaces body pieces apart in time. The
// connection helpers bypass HTTP entirely: Reset drops the connection
// without a response and WriteRaw sends arbitrary bytes before closing.
//
// All writers implement http.Flusher and Unwrap, so http.ResponseController
// can reach the underlying connection through them.
package chaos
