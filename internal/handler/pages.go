// pages.go renders the admin HTML views with html/template. Templates follow
// the base + page inheritance pattern: the shared layout is parsed once, then
// cloned and combined with each page file. Markdown in AI output is rendered
// with goldmark; html/template's auto-escaping covers everything else.
package handler

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/yuin/goldmark"
)

var md = goldmark.New()

// parseTemplates builds the page template cache. Panics on parse errors so a
// broken template set crashes at startup, not at first request.
func parseTemplates(templateFS fs.FS) map[string]*template.Template {
	funcMap := template.FuncMap{
		// markdown accepts the model's nullable string fields directly.
		"markdown": func(v any) template.HTML {
			var s string
			switch t := v.(type) {
			case *string:
				if t == nil {
					return ""
				}
				s = *t
			case string:
				s = t
			default:
				return ""
			}
			var buf bytes.Buffer
			if err := md.Convert([]byte(s), &buf); err != nil {
				// Fall back to escaped plain text when conversion fails.
				return template.HTML(template.HTMLEscapeString(s))
			}
			return template.HTML(buf.String())
		},
	}

	baseTmpl := template.Must(template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "base.html"))

	templates := make(map[string]*template.Template)
	for _, page := range []string{"feedback_list.html", "feedback_detail.html"} {
		clone := template.Must(baseTmpl.Clone())
		templates[page] = template.Must(clone.ParseFS(templateFS, page))
	}
	return templates
}

func (h *FeedbackHandler) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := h.templates[name]
	if !ok {
		http.Error(w, fmt.Sprintf("Template %s not found", name), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		h.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// HandleFeedbackList renders the admin table of submissions.
// Endpoint: GET /feedback
func (h *FeedbackHandler) HandleFeedbackList(w http.ResponseWriter, r *http.Request) {
	feedbacks, err := h.repo.List(r.Context(), r.URL.Query().Get("status"), 100, 0)
	if err != nil {
		http.Error(w, "Failed to load feedback", http.StatusInternalServerError)
		return
	}
	h.render(w, "feedback_list.html", feedbacks)
}

// HandleFeedbackDetail renders a single submission with its enhancement.
// Endpoint: GET /feedback/{id}
func (h *FeedbackHandler) HandleFeedbackDetail(w http.ResponseWriter, r *http.Request) {
	f, err := h.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "Failed to load feedback", http.StatusInternalServerError)
		return
	}
	if f == nil {
		http.Error(w, "Feedback not found", http.StatusNotFound)
		return
	}
	h.render(w, "feedback_detail.html", f)
}
