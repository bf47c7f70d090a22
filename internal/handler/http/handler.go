package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"linkedge/internal/classifier"
	"linkedge/internal/clicks"
	"linkedge/internal/domain"
	"linkedge/internal/engine"
	"linkedge/pkg/logger"
)

// Handler is the edge request pipeline: classify, gate, resolve, decide,
// respond, then schedule the click event off the response path.
type Handler struct {
	classifier *classifier.Classifier
	resolver   LinkResolver
	engine     *engine.Engine
	renderer   *engine.Renderer
	recorder   ClickRecorder
	logger     *logger.Logger
}

// LinkResolver is the resolution capability the handler needs.
// An interface instead of the concrete type allows for easy mocking in tests.
type LinkResolver interface {
	ResolveLink(ctx context.Context, linkDomain, key string) (*domain.Link, error)
	ResolveDomain(ctx context.Context, slug string) (*domain.Domain, error)
}

// ClickRecorder is the fire-and-forget click intake
type ClickRecorder interface {
	Record(event *domain.ClickEvent)
}

// NewHandler creates the edge handler
func NewHandler(c *classifier.Classifier, r LinkResolver, e *engine.Engine, rn *engine.Renderer, rec ClickRecorder, log *logger.Logger) *Handler {
	return &Handler{
		classifier: c,
		resolver:   r,
		engine:     e,
		renderer:   rn,
		recorder:   rec,
		logger:     log.WithComponent("edge"),
	}
}

// Serve handles every inbound request against a short domain.
// This is the hot path: the synchronous part is classify -> resolve ->
// decide -> respond; the click event is handed off after the response
// bytes are written.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	log := h.logger.WithContext(r.Context())

	target, err := h.classifier.Classify(r.Host, r.URL.Path)
	if err != nil {
		// Malformed host or key; never reaches the resolver
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	switch target.Kind {
	case classifier.KindApp:
		// Dashboard hosts are a separate deployment; the edge has nothing
		// to serve for them
		http.NotFound(w, r)

	case classifier.KindNotLink:
		h.renderer.Render(w, r, engine.Decision{Kind: engine.DecisionNotFound, Domain: target.Domain})

	case classifier.KindRoot:
		h.serveRoot(w, r, target)

	case classifier.KindLink:
		h.serveLink(w, r, target, log)
	}
}

func (h *Handler) serveRoot(w http.ResponseWriter, r *http.Request, target classifier.Target) {
	reqCtx := engine.RequestContext{Query: r.URL.Query()}

	d, err := h.resolver.ResolveDomain(r.Context(), target.Domain)
	switch {
	case err == nil:
		h.renderer.Render(w, r, h.engine.DecideRoot(d, target.Domain, reqCtx))
	case errors.Is(err, domain.ErrNotFound):
		// Unknown domains get the generic placeholder, not an error
		h.renderer.Render(w, r, h.engine.DecideRoot(nil, target.Domain, reqCtx))
	default:
		h.renderer.Render(w, r, h.engine.DecideFailure(err, target.Domain, ""))
	}
}

func (h *Handler) serveLink(w http.ResponseWriter, r *http.Request, target classifier.Target, log *logger.Logger) {
	info := clicks.ParseUserAgent(r.UserAgent())

	reqCtx := engine.RequestContext{
		Query:           r.URL.Query(),
		Country:         clicks.CountryFromRequest(r),
		OS:              info.OS,
		Device:          info.Device,
		PasswordAttempt: passwordAttempt(r),
		Bot:             info.Bot,
	}

	link, err := h.resolver.ResolveLink(r.Context(), target.Domain, target.Key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Error("resolve failed", "domain", target.Domain, "key", target.Key, "error", err)
		}
		h.renderer.Render(w, r, h.engine.DecideFailure(err, target.Domain, target.Key))
		return
	}

	decision := h.engine.Decide(link, reqCtx)

	// Response first, telemetry after: Render commits the bytes, then the
	// recorder gets the event. Record never blocks.
	h.renderer.Render(w, r, decision)

	if decision.RecordClick && h.recorder != nil {
		event := domain.NewClickEvent(link, decision.URL)
		h.recorder.Record(clicks.FromRequest(event, r, info))
	}
}

// passwordAttempt pulls the submitted credential from ?pw= or the wall
// form POST
func passwordAttempt(r *http.Request) string {
	if pw := r.URL.Query().Get("pw"); pw != "" {
		return pw
	}
	if r.Method == http.MethodPost {
		// FormValue parses the body on first use; the wall form posts
		// a single small field
		return r.PostFormValue("pw")
	}
	return ""
}

// HealthCheck handles GET /health/live
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","time":"` + time.Now().Format(time.RFC3339) + `"}`))
}
