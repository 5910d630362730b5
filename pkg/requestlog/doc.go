// Package requestlog keeps the most recent requests seen by the mock server
// so they can be inspected through the editor.
//
// It is distinct from operational logging, which goes through log/slog.
// Entries are recorded by the mock server once a request is finished and
// listed newest first.
//
//	log := requestlog.NewMemory(100)
//	log.Log(&requestlog.Entry{Method: "GET", Path: "/"})
//	recent := log.List(&requestlog.Filter{Limit: 10})
package requestlog
