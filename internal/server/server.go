package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aescanero/dago-view-render/internal/errorpage"
	"github.com/aescanero/dago-view-render/internal/render"
	"github.com/google/uuid"
	"github.com/itsatony/go-cuserr"
	"go.uber.org/zap"
)

const (
	headerCreatedBy = "X-Created-By"
	headerRequestID = "X-Request-ID"
	maxBodyBytes    = 1 << 20
)

// Renderer renders an entry template to a string
type Renderer interface {
	RenderString(ctx context.Context, entry string, data map[string]any) (string, error)
}

// Settings configures the HTTP binding
type Settings struct {
	Port          int
	CreatedBy     string
	RenderTimeout time.Duration
	Routes        []Route
	ErrorPage     *errorpage.Page
}

// RenderRequest is the body of POST /render
type RenderRequest struct {
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

// Server serves rendered templates over HTTP
type Server struct {
	settings Settings
	routes   map[string]Route
	renderer Renderer
	logger   *zap.Logger
	server   *http.Server
}

// New creates a new server
func New(settings Settings, renderer Renderer, logger *zap.Logger) *Server {
	if settings.ErrorPage == nil {
		settings.ErrorPage = errorpage.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	routes := make(map[string]Route, len(settings.Routes))
	for _, route := range settings.Routes {
		routes[route.Path] = route
	}

	return &Server{
		settings: settings,
		routes:   routes,
		renderer: renderer,
		logger:   logger,
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /render", s.handleRender)
	mux.HandleFunc("GET /", s.handleRoute)
	return mux
}

// Start starts the server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.settings.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting http server",
		zap.Int("port", s.settings.Port),
		zap.Int("routes", len(s.routes)),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the server, letting in-flight renders finish
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

// handleRoute renders the template registered for the request path
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	route, ok := s.routes[r.URL.Path]
	if !ok {
		s.fail(w, http.StatusNotFound, "no page at "+r.URL.Path, requestID)
		return
	}

	query := make(map[string]any, len(r.URL.Query()))
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			query[key] = values[0]
		}
	}

	data := make(map[string]any, len(route.Data)+1)
	for k, v := range route.Data {
		data[k] = v
	}
	data["query"] = query

	s.render(w, r, route.Template, data, requestID)
}

// handleRender renders the template named in the request body
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	requestID := requestIDFrom(r)

	var request RenderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid request body", requestID)
		return
	}
	if request.Template == "" {
		s.fail(w, http.StatusBadRequest, "template is required", requestID)
		return
	}
	if !filepath.IsLocal(filepath.FromSlash(request.Template)) {
		s.logger.Warn("rejected template outside the template root",
			zap.String("request_id", requestID),
			zap.String("template", request.Template),
		)
		s.fail(w, http.StatusNotFound, "template not found", requestID)
		return
	}

	s.render(w, r, request.Template, request.Data, requestID)
}

// render buffers the whole page before writing, so a failed render never
// produces a partial response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, entry string, data map[string]any, requestID string) {
	ctx := r.Context()
	if s.settings.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RenderTimeout)
		defer cancel()
	}

	start := time.Now()
	html, err := s.renderer.RenderString(ctx, entry, data)
	if err != nil {
		status, message := classify(err)
		s.logger.Error("render failed",
			zap.String("request_id", requestID),
			zap.String("template", entry),
			zap.Int("status", status),
			zap.Error(err),
		)
		s.fail(w, status, message, requestID)
		return
	}

	s.logger.Debug("render served",
		zap.String("request_id", requestID),
		zap.String("template", entry),
		zap.Int("bytes", len(html)),
		zap.Duration("duration", time.Since(start)),
	)

	s.writeHTML(w, http.StatusOK, html, requestID)
}

func (s *Server) fail(w http.ResponseWriter, status int, message, requestID string) {
	body, err := s.settings.ErrorPage.Render(status, message, requestID)
	if err != nil {
		s.logger.Error("failed to render error page", zap.Error(err))
		body = http.StatusText(status)
	}
	s.writeHTML(w, status, body, requestID)
}

func (s *Server) writeHTML(w http.ResponseWriter, status int, body, requestID string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(headerRequestID, requestID)
	if s.settings.CreatedBy != "" {
		w.Header().Set(headerCreatedBy, s.settings.CreatedBy)
	}
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Warn("failed to write response",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

// classify maps a render error to an HTTP status and a public message
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "render timed out"
	case errors.Is(err, render.ErrFileAccess) && errors.Is(err, fs.ErrNotExist) && isEntryError(err):
		return http.StatusNotFound, "template not found"
	default:
		return http.StatusInternalServerError, "render failed"
	}
}

func isEntryError(err error) bool {
	var customErr *cuserr.CustomError
	if !errors.As(err, &customErr) {
		return false
	}
	role, ok := customErr.GetMetadata(render.MetaKeyRole)
	return ok && role == render.RoleEntry
}

func requestIDFrom(r *http.Request) string {
	if id := r.Header.Get(headerRequestID); id != "" {
		return id
	}
	return uuid.NewString()
}
