package rules

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRequest builds a Request the way the mock server does.
func newTestRequest(method, target, body string, headers map[string]string) *Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	for name, value := range headers {
		r.Header.Set(name, value)
	}
	return NewRequest(r, []byte(body))
}

func evaluate(t *testing.T, script string, req *Request) *Response {
	t.Helper()
	prog, err := Compile(script)
	require.NoError(t, err)
	resp, err := prog.Evaluate(req)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func get(target string) *Request {
	return newTestRequest("GET", target, "", nil)
}

// ============================================================================
// Baseline and last-write-wins
// ============================================================================

func TestEvaluate_EmptyProgram(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, "", get("/"))
	assert.Equal(t, 404, resp.Status)
	assert.Empty(t, resp.Headers)
	assert.Empty(t, resp.BodyBytes())
	assert.False(t, resp.Stream)
	assert.Equal(t, -1, resp.Truncate)
	assert.Nil(t, resp.Raw)
}

func TestEvaluate_DefaultRules(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, DefaultRules, get("/anything"))
	assert.Equal(t, 404, resp.Status)
	assert.Empty(t, resp.BodyBytes())
}

func TestEvaluate_LastWriteWins(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, "status(200)\nstatus(500)", get("/"))
	assert.Equal(t, 500, resp.Status)

	resp = evaluate(t, `text("first"); body("second")`, get("/"))
	assert.Equal(t, "second", string(resp.BodyBytes()))
	assert.Equal(t, "text/plain; charset=utf-8", resp.HeaderValue("Content-Type"))
}

func TestEvaluate_ErrorClearsBody(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `text("hello"); error(503)`, get("/"))
	assert.Equal(t, 503, resp.Status)
	assert.Empty(t, resp.BodyBytes())
}

// ============================================================================
// Directives
// ============================================================================

func TestEvaluate_Headers(t *testing.T) {
	t.Parallel()

	script := `
header("X-A", "1")
add_header("X-A", 2)
add_header("X-B", "b")
header("Set-Cookie", "a=1")
add_header("Set-Cookie", "b=2")
remove_header("x-b")
`
	resp := evaluate(t, script, get("/"))
	assert.Equal(t, []string{"1", "2"}, resp.HeaderValues("X-A"))
	assert.Empty(t, resp.HeaderValues("X-B"))
	assert.Equal(t, []string{"a=1", "b=2"}, resp.HeaderValues("set-cookie"))

	resp = evaluate(t, `add_header("X-A", "1"); add_header("X-A", "2"); header("x-a", "3")`, get("/"))
	assert.Equal(t, []string{"3"}, resp.HeaderValues("X-A"))
}

func TestEvaluate_BodyKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		script      string
		body        string
		contentType string
	}{
		{"body string", `body("plain")`, "plain", ""},
		{"body number", `body(42)`, "42", ""},
		{"body bool", `body(true)`, "true", ""},
		{"body nil", `body(nil)`, "", ""},
		{"body list", `body([1, 2])`, "[1,2]", ""},
		{"text", `text("hi")`, "hi", "text/plain; charset=utf-8"},
		{"html", `html("<p>hi</p>")`, "<p>hi</p>", "text/html; charset=utf-8"},
		{"json string verbatim", `json("{\"a\": 1}")`, `{"a": 1}`, "application/json"},
		{"json map", "json({\n  \"b\": [1, 2],\n  \"a\": 1\n})", `{"a":1,"b":[1,2]}`, "application/json"},
		{"json number", `json(3)`, "3", "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := evaluate(t, tt.script, get("/"))
			assert.Equal(t, tt.body, string(resp.BodyBytes()))
			assert.Equal(t, tt.contentType, resp.HeaderValue("Content-Type"))
		})
	}
}

func TestEvaluate_Echo(t *testing.T) {
	t.Parallel()

	req := newTestRequest("POST", "/a?b=1", "hi", map[string]string{"X-Test": "y"})
	resp := evaluate(t, "echo()", req)

	body := string(resp.BodyBytes())
	assert.True(t, strings.HasPrefix(body, "POST /a?b=1 HTTP/1.1\nHost: example.com\n"), body)
	assert.Contains(t, body, "X-Test: y\n")
	assert.True(t, strings.HasSuffix(body, "\n\nhi"), body)
	assert.Equal(t, "text/plain; charset=utf-8", resp.HeaderValue("Content-Type"))
}

func TestEvaluate_Streaming(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `chunk("a"); chunk("b"); chunk_delay("10ms")`, get("/"))
	assert.True(t, resp.Stream)
	assert.Equal(t, []string{"a", "b"}, resp.Body)
	assert.Equal(t, 10*time.Millisecond, resp.ChunkDelay)

	resp = evaluate(t, `chunk("a"); body("b")`, get("/"))
	assert.False(t, resp.Stream)
	assert.Equal(t, []string{"b"}, resp.Body)
}

func TestEvaluate_Redirect(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `redirect("/login")`, get("/"))
	assert.Equal(t, 302, resp.Status)
	assert.Equal(t, "/login", resp.HeaderValue("Location"))

	resp = evaluate(t, `redirect("https://example.org/", 301)`, get("/"))
	assert.Equal(t, 301, resp.Status)
	assert.Equal(t, "https://example.org/", resp.HeaderValue("Location"))
}

func TestEvaluate_Delays(t *testing.T) {
	t.Parallel()

	tests := []struct {
		script string
		want   time.Duration
	}{
		{`delay(2)`, 2 * time.Second},
		{`delay(0.5)`, 500 * time.Millisecond},
		{`delay("250ms")`, 250 * time.Millisecond},
		{`delay("1.5")`, 1500 * time.Millisecond},
		{`delay(duration("1m"))`, time.Minute},
	}
	for _, tt := range tests {
		resp := evaluate(t, tt.script, get("/"))
		assert.Equal(t, tt.want, resp.Delay, tt.script)
	}
}

func TestEvaluate_WireDirectives(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `close(); truncate(3); text("hello")`, get("/"))
	assert.True(t, resp.Close)
	assert.Equal(t, 3, resp.Truncate)
	assert.False(t, resp.Reset)

	resp = evaluate(t, `reset()`, get("/"))
	assert.True(t, resp.Reset)

	resp = evaluate(t, `raw("HTTP/1.1 200 OK\r\n\r\n")`, get("/"))
	assert.Equal(t, []byte("HTTP/1.1 200 OK\r\n\r\n"), resp.Raw)

	resp = evaluate(t, `raw("")`, get("/"))
	assert.NotNil(t, resp.Raw)
	assert.Empty(t, resp.Raw)
}

func TestEvaluate_CORS(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `cors(); text("ok")`, get("/"))
	assert.Equal(t, "*", resp.HeaderValue("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.HeaderValue("Access-Control-Allow-Credentials"))

	req := newTestRequest("GET", "/", "", map[string]string{"Origin": "https://app.example"})
	resp = evaluate(t, `cors(); text("ok")`, req)
	assert.Equal(t, "https://app.example", resp.HeaderValue("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.HeaderValue("Access-Control-Allow-Credentials"))
	assert.Equal(t, "Origin", resp.HeaderValue("Vary"))
	assert.Equal(t, "ok", string(resp.BodyBytes()))

	preflight := newTestRequest("OPTIONS", "/", "", map[string]string{
		"Origin":                         "https://app.example",
		"Access-Control-Request-Method":  "PUT",
		"Access-Control-Request-Headers": "X-Token",
	})
	resp = evaluate(t, `text("ignored"); cors()`, preflight)
	assert.Equal(t, 204, resp.Status)
	assert.Empty(t, resp.BodyBytes())
	assert.Contains(t, resp.HeaderValue("Access-Control-Allow-Methods"), "PUT")
	assert.Equal(t, "X-Token", resp.HeaderValue("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", resp.HeaderValue("Access-Control-Max-Age"))
}

func TestEvaluate_Auth(t *testing.T) {
	t.Parallel()

	script := `status(200); text("secret"); basic_auth("admin")`

	resp := evaluate(t, script, get("/"))
	assert.Equal(t, 401, resp.Status)
	assert.Equal(t, `Basic realm="admin"`, resp.HeaderValue("WWW-Authenticate"))
	assert.Empty(t, resp.BodyBytes())

	req := newTestRequest("GET", "/", "", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"})
	resp = evaluate(t, script, req)
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "secret", string(resp.BodyBytes()))

	resp = evaluate(t, `status(200); bearer_auth()`, req)
	assert.Equal(t, 401, resp.Status)
	assert.Equal(t, `Bearer realm="turq"`, resp.HeaderValue("WWW-Authenticate"))

	req = newTestRequest("GET", "/", "", map[string]string{"Authorization": "bearer abc.def"})
	resp = evaluate(t, `status(200); bearer_auth()`, req)
	assert.Equal(t, 200, resp.Status)
}

// ============================================================================
// Conditionals and the request environment
// ============================================================================

func TestEvaluate_Conditionals(t *testing.T) {
	t.Parallel()

	script := `
if method == "POST" {
    status(201)
} else if method == "DELETE" {
    status(204)
} else {
    status(200)
    header("X-Branch", "else")
}
`
	assert.Equal(t, 201, evaluate(t, script, newTestRequest("POST", "/", "", nil)).Status)
	assert.Equal(t, 204, evaluate(t, script, newTestRequest("DELETE", "/", "", nil)).Status)

	resp := evaluate(t, script, get("/"))
	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "else", resp.HeaderValue("X-Branch"))

	// A branch that is not taken has no side effects.
	resp = evaluate(t, `if false { status(500); header("X-No", "1") }`, get("/"))
	assert.Equal(t, 404, resp.Status)
	assert.Empty(t, resp.Headers)
}

func TestEvaluate_RequestEnvironment(t *testing.T) {
	t.Parallel()

	req := newTestRequest("PUT", "/users/42?q=go&q=ignored", `{"user": {"name": "ann"}}`, map[string]string{
		"X-Api-Key":    "k1",
		"Content-Type": "application/json",
	})

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"method and path", `text(method + " " + path)`, "PUT /users/42"},
		{"scheme", `text(scheme)`, "http"},
		{"host", `text(host)`, "example.com"},
		{"query map", `text(query.q)`, "go"},
		{"param", `text(param("q"))`, "go"},
		{"header case-insensitive", `text(header("x-api-key"))`, "k1"},
		{"headers map", `text(headers["X-Api-Key"])`, "k1"},
		{"body", `text(body)`, `{"user": {"name": "ann"}}`},
		{"json member", `text(json.user.name)`, "ann"},
		{"jsonpath", `text(jsonpath("$.user.name"))`, "ann"},
		{"route and segment", `if route("/users/{id}") { text("id=" + segment("id")) }`, "id=42"},
		{"colon route", `if route("/users/:id") { text(segment("id")) }`, "42"},
		{"glob", `if glob("/users/*") { text("matched") }`, "matched"},
		{"builtins", `text(upper(param("q")))`, "GO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := evaluate(t, tt.script, req)
			assert.Equal(t, tt.want, string(resp.BodyBytes()))
		})
	}
}

func TestEvaluate_AbsentData(t *testing.T) {
	t.Parallel()

	req := get("/plain")

	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"missing header", `text("[" + header("X-Missing") + "]")`, "[]"},
		{"missing header in map", `text("[" + headers["X-Missing"] + "]")`, "[]"},
		{"missing param", `text("[" + param("nope") + "]")`, "[]"},
		{"missing query key", `text("[" + query.nope + "]")`, "[]"},
		{"segment without route", `text("[" + segment("id") + "]")`, "[]"},
		{"json without body", `if json == nil { text("nil") }`, "nil"},
		{"jsonpath without body", `if jsonpath("$.a") == nil { text("nil") }`, "nil"},
		{"nil condition is false", `if json?.missing { text("yes") } else { text("no") }`, "no"},
		{"json field without body", `if json.user == "bob" { text("yes") } else { text("no") }`, "no"},
		{"nested json field without body", `if json.user.name == "bob" { text("yes") } else { text("no") }`, "no"},
		{"json index without body", `if json["user"] == nil { text("nil") }`, "nil"},
		{"json field as condition", `if json.admin { text("yes") } else { text("no") }`, "no"},
		{"unmatched route", `if route("/users/{id}") { text("yes") } else { text("no") }`, "no"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := evaluate(t, tt.script, req)
			assert.Equal(t, tt.want, string(resp.BodyBytes()))
		})
	}
}

func TestEvaluate_NonJSONBody(t *testing.T) {
	t.Parallel()

	req := newTestRequest("POST", "/", "not json", nil)
	resp := evaluate(t, `if json == nil { text(body) }`, req)
	assert.Equal(t, "not json", string(resp.BodyBytes()))
}

func TestEvaluate_UUID(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `text(uuid())`, get("/"))
	assert.Len(t, resp.BodyBytes(), 36)
}

// ============================================================================
// Evaluation errors
// ============================================================================

func TestEvaluate_JSONFields(t *testing.T) {
	t.Parallel()

	script := `if json.user.name == "bob" { text("bob") } else if json.user == nil { text("anonymous") } else { text("other") }`
	tests := []struct {
		name string
		body string
		want string
	}{
		{"no body", "", "anonymous"},
		{"not json", "x", "anonymous"},
		{"missing field", `{"other": 1}`, "anonymous"},
		{"matching field", `{"user": {"name": "bob"}}`, "bob"},
		{"other field", `{"user": {"name": "eve"}}`, "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := evaluate(t, script, newTestRequest("POST", "/", tt.body, nil))
			assert.Equal(t, tt.want, string(resp.BodyBytes()))
		})
	}
}

func TestEvaluate_StatusFromJSONNumber(t *testing.T) {
	t.Parallel()

	resp := evaluate(t, `status(json.code)`, newTestRequest("POST", "/", `{"code": 201}`, nil))
	assert.Equal(t, 201, resp.Status)
}

func TestEvaluate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		script    string
		target    string
		body      string
		line      int
		directive string
		message   string
	}{
		{"int conversion", "status(200)\nstatus(int(param(\"code\")))", "/?code=abc", "", 2, "status", ""},
		{"status out of range", `status(int(param("code")))`, "/?code=1000", "", 1, "status", "out of range"},
		{"fail", "text(\"partial\")\n\nfail(\"boom\")", "/", "", 3, "fail", "boom"},
		{"fail inside branch", "if true {\n  fail(\"nested\")\n}", "/", "", 2, "fail", "nested"},
		{"bad duration", `delay(param("d"))`, "/?d=soon", "", 1, "delay", "invalid duration"},
		{"negative duration", `delay(0 - 1)`, "/", "", 1, "delay", "negative duration"},
		{"huge duration", `delay(1e300)`, "/", "", 1, "delay", "out of range"},
		{"huge duration string", `delay(param("d"))`, "/?d=1e300", "", 1, "delay", "out of range"},
		{"fractional status", `status(200.9)`, "/", "", 1, "status", "expected int, got 200.9"},
		{"fractional json status", `status(json.code)`, "/", `{"code": 200.5}`, 1, "status", "expected int"},
		{"string status", `status(json.code)`, "/", `{"code": "200"}`, 1, "status", "expected int, got string"},
		{"negative truncate", `truncate(int(param("n")))`, "/?n=-5", "", 1, "truncate", "negative"},
		{"invalid header name", `header(param("h"), "v")`, "/?h=a%20b", "", 1, "header", "invalid header name"},
		{"bad glob", `if glob("[") { status(200) }`, "/", "", 1, "if", "invalid glob pattern"},
		{"bad jsonpath", `text(jsonpath("$.user["))`, "/", `{"a": 1}`, 1, "text", ""},
		{"non-bool guard", `if json { status(200) }`, "/", `{"a": 1}`, 1, "if", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prog, err := Compile(tt.script)
			require.NoError(t, err)

			resp, err := prog.Evaluate(newTestRequest("POST", tt.target, tt.body, nil))
			require.Error(t, err)
			assert.Nil(t, resp)

			var evalErr *EvaluationError
			require.True(t, errors.As(err, &evalErr), "expected *EvaluationError, got %T", err)
			assert.Equal(t, tt.line, evalErr.Line)
			assert.Equal(t, tt.directive, evalErr.Directive)
			assert.Contains(t, evalErr.Error(), tt.message)
		})
	}
}

func TestEvaluate_ErrorDoesNotAffectNextRequest(t *testing.T) {
	t.Parallel()

	prog, err := Compile(`status(int(param("code")))`)
	require.NoError(t, err)

	_, err = prog.Evaluate(get("/?code=x"))
	require.Error(t, err)

	resp, err := prog.Evaluate(get("/?code=201"))
	require.NoError(t, err)
	assert.Equal(t, 201, resp.Status)
}

func TestEvaluationError_Error(t *testing.T) {
	t.Parallel()

	err := &EvaluationError{Directive: "fail", Line: 3, Err: errors.New("boom")}
	assert.Equal(t, "line 3: fail: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}

// ============================================================================
// Concurrency
// ============================================================================

func TestEvaluate_Concurrent(t *testing.T) {
	t.Parallel()

	prog, err := Compile(`if route("/items/{id}") { text(segment("id")) } else { error(400) }`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := strings.Repeat("x", i+1)
			resp, err := prog.Evaluate(get("/items/" + id))
			if assert.NoError(t, err) {
				assert.Equal(t, id, string(resp.BodyBytes()))
			}
		}(i)
	}
	wg.Wait()
}
