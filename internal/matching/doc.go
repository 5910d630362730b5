// Package matching provides the request predicates that rule expressions
// call: route patterns with named segments, doublestar globs over the
// request path, and JSONPath lookups into a decoded JSON body.
package matching
