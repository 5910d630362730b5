// Package engine provides the mock server: the HTTP listener that answers
// every request by evaluating the installed rule program.
//
// # Architecture
//
//	┌──────────────┐  Submit   ┌─────────────┐  Current   ┌──────────────┐
//	│ editor       │ ────────▶ │ store.Store │ ◀───────── │ engine       │
//	│ (:13086)     │           │  snapshot   │            │ (:13085)     │
//	└──────────────┘           └─────────────┘            └──────────────┘
//
// Each request takes one snapshot of the store, evaluates its program
// against the request and writes the resulting response. A failed
// evaluation is answered with a 500 diagnostic; the connection stays
// usable.
//
// # Basic Usage
//
//	st := store.New(rules.MustCompile(rules.DefaultRules))
//	srv := engine.NewServer(cfg, st, engine.WithLogger(log))
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	defer srv.Stop(context.Background())
//
// # Wire behavior
//
// The response is written in this order: delay, then either a connection
// reset, raw bytes, or a regular HTTP response. Regular responses carry
// "Server: turq/<version>" unless the rules set Server themselves. Streamed
// bodies are flushed piece by piece. A truncated body keeps its declared
// length and the connection is closed after the short write.
package engine
