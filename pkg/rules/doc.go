// Package rules implements the turq rule language: a small script that
// describes, per request, what response the mock server should send.
//
// # Scripts
//
// A script is a sequence of statements separated by whitespace, newlines or
// semicolons. Between statements, # starts a comment that runs to the end
// of the line. A statement is either a directive call or a conditional:
//
//	status(200)
//	header("X-Request-Id", uuid())
//	if method == "POST" && route("/users/{id}") {
//	    json({"id": segment("id"), "created": true})
//	} else if glob("/static/**") {
//	    text("static")
//	} else {
//	    error(404)
//	}
//
// Directive arguments and if conditions are expressions in the expr-lang
// language (https://expr-lang.org). They are compiled and type-checked once,
// when the script is compiled, and evaluated for every request. A condition
// extends up to the first "{" outside quotes, parentheses and brackets, so
// map literals in conditions must be parenthesized. Arguments may span lines.
//
// # Request environment
//
// Expressions see the request through these names:
//
//	method, path, host, scheme, proto, remote   string
//	query, headers                              map[string]string (first value)
//	body                                        string
//	json                                        decoded JSON body, or nil
//	header(name)                                case-insensitive header lookup
//	param(name)                                 query parameter
//	glob(pattern)                               doublestar match against path
//	route(pattern)                              "/users/{id}" or "/users/:id"
//	segment(name)                               segment captured by route()
//	jsonpath(expr)                              first JSONPath match in json
//	uuid()                                      random UUID
//
// Missing data is never an error: absent headers, parameters and segments
// are "", and a body that is not JSON leaves json nil. A nil condition is
// false.
//
// # Directives
//
//	status(code)              set the status code
//	error(code)               set the status code and clear the body
//	header(name, value)       replace all values of a header
//	add_header(name, value)   append a header value
//	remove_header(name)       remove a header
//	body(value)               set the body
//	text(value), html(value)  set the body and Content-Type
//	json(value)               set a JSON body; strings are sent verbatim
//	echo()                    answer with a text dump of the request
//	chunk(value)              append a streamed body piece
//	chunk_delay(d)            pause between streamed pieces
//	redirect(location[, code]) redirect, 302 by default
//	delay(d)                  wait before responding
//	cors()                    allow cross-origin requests, answer preflights
//	basic_auth([realm])       401 unless Basic credentials are present
//	bearer_auth([realm])      401 unless a Bearer token is present
//	close()                   close the connection after the response
//	reset()                   drop the connection without responding
//	truncate(n)               send only the first n bytes of the body
//	raw(value)                write bytes verbatim instead of a response
//	fail(message)             fail the request with an error
//
// Durations are a number of seconds or a duration string such as "250ms".
//
// Directives run top to bottom and every one overwrites what it sets, so
// the last write wins. A script that sets nothing yields 404 with an empty
// body.
package rules
