package web

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed templates/index.html
var indexHTML string

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

type pageData struct {
	Transcript string
	Reply      string
	AudioSrc   string
	Error      string
}

func renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
