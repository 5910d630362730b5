package editor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/vfaronov/turq/pkg/config"
	"github.com/vfaronov/turq/pkg/metrics"
	"github.com/vfaronov/turq/pkg/rules"
	"github.com/vfaronov/turq/pkg/store"
)

const badScript = "status(200)\nbogus(1)"

func newTestEditor(t *testing.T, script string) (*Server, *store.Store, *metrics.Metrics) {
	t.Helper()
	st, err := store.NewFromText(script)
	require.NoError(t, err)
	m := metrics.New()
	return NewServer(nil, st, WithMetrics(m), WithVersion("test")), st, m
}

func do(h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Plain-text API
// =============================================================================

func TestGetRules(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestEditor(t, rules.DefaultRules)
	rec := do(srv.Handler(), "GET", "/rules", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, rules.DefaultRules, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPutRules_RoundTrip(t *testing.T) {
	t.Parallel()

	srv, st, m := newTestEditor(t, rules.DefaultRules)
	script := "# greet\nif path == \"/hi\" {\n  text(\"hello\")\n}\n"

	rec := do(srv.Handler(), "PUT", "/rules", "text/plain", script)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RulesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(2), resp.Version)
	assert.Equal(t, script, resp.Rules)

	rec = do(srv.Handler(), "GET", "/rules", "", "")
	assert.Equal(t, script, rec.Body.String())
	assert.Equal(t, uint64(2), st.Current().Version)
	assert.Equal(t, 1.0, m.SubmissionsTotal.Value("editor", "ok"))
}

func TestPostRules_SameAsPut(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestEditor(t, rules.DefaultRules)
	rec := do(srv.Handler(), "POST", "/rules", "text/plain", `status(204)`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `status(204)`, st.Current().Text)
}

func TestPutRules_CompileError(t *testing.T) {
	t.Parallel()

	srv, st, m := newTestEditor(t, rules.DefaultRules)
	rec := do(srv.Handler(), "PUT", "/rules", "text/plain", badScript)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "compile_error", body["error"])
	assert.Equal(t, `unknown directive "bogus"`, body["message"])
	assert.Equal(t, 2.0, body["line"])
	assert.Equal(t, 1.0, body["column"])

	// The active script is untouched.
	assert.Equal(t, rules.DefaultRules, do(srv.Handler(), "GET", "/rules", "", "").Body.String())
	assert.Equal(t, uint64(1), st.Current().Version)
	assert.Equal(t, 1.0, m.SubmissionsTotal.Value("editor", "compile_error"))
}

func TestPutRules_TooLarge(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestEditor(t, rules.DefaultRules)
	script := "# " + strings.Repeat("x", MaxScriptSize) + "\n"
	rec := do(srv.Handler(), "PUT", "/rules", "text/plain", script)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, uint64(1), st.Current().Version)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestEditor(t, "status(200)\ntext(\"ok\")\n")

	rec := do(srv.Handler(), "GET", "/status", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, uint64(1), status.RulesVersion)
	assert.Equal(t, 2, status.Directives)
	assert.Nil(t, status.LastError)
	assert.False(t, status.InstalledAt.IsZero())

	do(srv.Handler(), "PUT", "/rules", "text/plain", badScript)
	rec = do(srv.Handler(), "GET", "/status", "", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.NotNil(t, status.LastError)
	assert.Equal(t, 2, status.LastError.Line)
	assert.Equal(t, 1, status.LastError.Column)
	assert.Contains(t, status.LastError.Message, "bogus")
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestEditor(t, rules.DefaultRules)
	rec := do(srv.Handler(), "GET", "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","uptime":0}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestEditor(t, rules.DefaultRules)
	do(srv.Handler(), "PUT", "/rules", "text/plain", `status(200)`)

	rec := do(srv.Handler(), "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `turq_rule_submissions_total{source="editor",result="ok"} 1`)
}

func TestMetricsEndpoint_WithoutMetrics(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, store.New(rules.MustCompile(rules.DefaultRules)))
	rec := do(srv.Handler(), "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Submissions still work with no metrics attached.
	rec = do(srv.Handler(), "PUT", "/rules", "text/plain", `status(200)`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownRoutes(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestEditor(t, rules.DefaultRules)
	assert.Equal(t, http.StatusNotFound, do(srv.Handler(), "GET", "/nope", "", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(srv.Handler(), "DELETE", "/rules", "", "").Code)
}

// =============================================================================
// Browser page
// =============================================================================

func TestPage_ShowsScript(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestEditor(t, `text("<b>&</b>")`)
	rec := do(srv.Handler(), "GET", "/", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `<textarea name="rules"`)
	assert.Contains(t, body, "text(&#34;&lt;b&gt;&amp;&lt;/b&gt;&#34;)")
	assert.Contains(t, body, "turq test, rules version 1")
	assert.NotContains(t, body, `class="error"`)
}

// textareaContent returns the text a browser puts in the rules textarea.
func textareaContent(t *testing.T, page string) string {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	var find func(*html.Node) *html.Node
	find = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "textarea" {
			return n
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := find(c); found != nil {
				return found
			}
		}
		return nil
	}
	textarea := find(doc)
	require.NotNil(t, textarea, "no textarea in page")

	var sb strings.Builder
	for c := textarea.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func TestPage_TextareaKeepsLeadingNewlines(t *testing.T) {
	t.Parallel()

	for _, script := range []string{
		"\ntext(\"x\")\n",
		"\n\n# comment\nstatus(200)",
		`text("<b>&</b>")`,
		"",
	} {
		srv, _, _ := newTestEditor(t, script)
		rec := do(srv.Handler(), "GET", "/", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, script, textareaContent(t, rec.Body.String()), "%q", script)
	}
}

func TestPage_SubmitSuccess(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestEditor(t, rules.DefaultRules)
	form := url.Values{"rules": {"status(200)\r\ntext(\"hi\")\r\n"}}
	rec := do(srv.Handler(), "POST", "/", "application/x-www-form-urlencoded", form.Encode())

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?saved", rec.Header().Get("Location"))
	assert.Equal(t, "status(200)\ntext(\"hi\")\n", st.Current().Text)

	rec = do(srv.Handler(), "GET", "/?saved", "", "")
	assert.Contains(t, rec.Body.String(), "Rules installed.")
}

func TestPage_SubmitCompileError(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestEditor(t, rules.DefaultRules)
	form := url.Values{"rules": {badScript}}
	rec := do(srv.Handler(), "POST", "/", "application/x-www-form-urlencoded", form.Encode())

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Error (line 2, column 1): unknown directive &#34;bogus&#34;")
	assert.Contains(t, body, "bogus(1)</textarea>")
	assert.Equal(t, rules.DefaultRules, st.Current().Text)

	// The page keeps reporting the failure until a submission succeeds.
	rec = do(srv.Handler(), "GET", "/", "", "")
	assert.Contains(t, rec.Body.String(), `class="error"`)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestServer_StartStop(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Bind = "127.0.0.1"
	cfg.EditorPort = 0
	st := store.New(rules.MustCompile(rules.DefaultRules))
	srv := NewServer(cfg, st)

	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})
	assert.Error(t, srv.Start())

	base := "http://" + srv.Addr().String()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPut, base+"/rules", strings.NewReader(`text("live")`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/rules")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, `text("live")`, string(data))

	require.NoError(t, srv.Stop(t.Context()))
	assert.NoError(t, srv.Stop(t.Context()))
}
