package editor

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/vfaronov/turq/pkg/httputil"
)

type pageData struct {
	Version      string
	RulesVersion uint64
	Rules        string
	Saved        bool
	Error        *SubmissionError
}

var pageTemplate = template.Must(template.New("editor").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>turq editor</title>
<style>
body { font-family: sans-serif; margin: 2em; }
textarea { width: 100%; height: 60vh; font-family: monospace; font-size: 14px; }
.error { color: #a00; white-space: pre-wrap; }
.saved { color: #070; }
footer { color: #777; font-size: 12px; margin-top: 1em; }
</style>
</head>
<body>
<h1>turq</h1>
{{- if .Error}}
<p class="error">Error{{if .Error.Line}} (line {{.Error.Line}}{{if .Error.Column}}, column {{.Error.Column}}{{end}}){{end}}: {{.Error.Message}}</p>
{{- else if .Saved}}
<p class="saved">Rules installed.</p>
{{- end}}
<form method="post" action="/">
<textarea name="rules" spellcheck="false" autofocus>
{{.Rules}}</textarea>
<p><button type="submit">Install rules</button></p>
</form>
<footer>turq {{.Version}}, rules version {{.RulesVersion}}</footer>
</body>
</html>
`))

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		s.log.Error("failed to render editor page", "error", err)
		httputil.WriteText(w, http.StatusInternalServerError, "Failed to render page\n")
		return
	}
	httputil.WriteHTML(w, status, buf.String())
}
