package engine

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"linkedge/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer is the single consumer of Decisions: every decision kind maps to
// exactly one HTTP response here.
type Renderer struct {
	templates *template.Template
	log       *logger.Logger
}

// NewRenderer parses the embedded pages. Template parse failures are a
// build defect, so this panics rather than returning an error.
func NewRenderer(log *logger.Logger) *Renderer {
	return &Renderer{
		templates: template.Must(template.ParseFS(templateFS, "templates/*.html")),
		log:       log.WithComponent("renderer"),
	}
}

type pageData struct {
	Domain        string
	Key           string
	ShortURL      string
	URL           string
	AppURL        string
	WrongPassword bool
	OGTitle       string
	OGDescription string
	OGImage       string
}

// Render writes the Decision to the response.
// Short-link responses are never indexable and never leak the referrer
// beyond the origin.
func (rn *Renderer) Render(w http.ResponseWriter, r *http.Request, d Decision) {
	w.Header().Set("X-Robots-Tag", "noindex")

	switch d.Kind {
	case DecisionRedirect:
		http.Redirect(w, r, d.URL, d.Status)

	case DecisionPasswordWall:
		rn.page(w, http.StatusUnauthorized, "password.html", pageData{
			Domain:        d.Domain,
			Key:           d.Key,
			ShortURL:      d.Domain + "/" + d.Key,
			WrongPassword: d.WrongPassword,
		})

	case DecisionDeepLink:
		rn.page(w, http.StatusOK, "deeplink.html", pageData{
			URL:    d.URL,
			AppURL: d.AppURL,
		})

	case DecisionCloak:
		data := pageData{URL: d.URL, ShortURL: d.Domain + "/" + d.Key}
		if d.Link != nil {
			data.OGTitle = d.Link.OGTitle
			data.OGDescription = d.Link.OGDescription
			data.OGImage = d.Link.OGImage
		}
		w.Header().Set("Referrer-Policy", "no-referrer")
		rn.page(w, http.StatusOK, "cloak.html", data)

	case DecisionPlaceholder:
		rn.page(w, http.StatusOK, "placeholder.html", pageData{Domain: d.Domain})

	case DecisionBlock:
		rn.page(w, http.StatusForbidden, "block.html", pageData{ShortURL: d.Domain + "/" + d.Key})

	case DecisionNotFound:
		rn.page(w, http.StatusNotFound, "notfound.html", pageData{Domain: d.Domain, Key: d.Key})

	case DecisionGone:
		rn.page(w, http.StatusGone, "gone.html", pageData{ShortURL: d.Domain + "/" + d.Key})

	default:
		rn.page(w, http.StatusInternalServerError, "error.html", pageData{})
	}
}

// page renders a template into a buffer first, so a template error can
// still produce a clean 500 instead of a half-written page
func (rn *Renderer) page(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := rn.templates.ExecuteTemplate(&buf, name, data); err != nil {
		rn.log.Error("template render failed", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
