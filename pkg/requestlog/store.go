package requestlog

// Logger records entries. The mock server only needs this half.
type Logger interface {
	Log(entry *Entry)
}

// Store is a queryable request history.
type Store interface {
	Logger

	// Get returns the entry with the given ID, or nil.
	Get(id string) *Entry

	// List returns entries newest first. A nil filter returns everything.
	List(filter *Filter) []*Entry

	// Count returns the number of stored entries.
	Count() int

	// Clear removes all entries.
	Clear()
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	// Method matches the request method exactly.
	Method string

	// Path is a doublestar glob over the request path, e.g. "/api/**".
	Path string

	// Outcome matches Entry.Outcome exactly, e.g. "404" or "reset".
	Outcome string

	// Offset skips that many matching entries.
	Offset int

	// Limit caps the number of entries returned.
	Limit int
}
