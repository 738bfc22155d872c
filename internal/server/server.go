// Package server exposes a panel session over HTTP: host pushes come in as
// JSON posts, the scene goes out as GeoJSON and as a server-sent event
// stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/routemap/internal/model"
	"github.com/sells-group/routemap/internal/panel"
	"github.com/sells-group/routemap/internal/render"
)

// keepaliveInterval is how often an idle event stream gets a comment line.
const keepaliveInterval = 15 * time.Second

// Server serves one panel session.
type Server struct {
	session *panel.Session
	scene   *render.Scene
	broker  *Broker
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins sets the CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// New creates a server for session, rendering scene and streaming through broker.
func New(session *panel.Session, scene *render.Scene, broker *Broker, opts ...Option) *Server {
	s := &Server{
		session: session,
		scene:   scene,
		broker:  broker,
		origins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/host", func(r chi.Router) {
			r.Post("/record", s.handleRecord)
			r.Post("/records", s.handleRecords)
			r.Post("/new-record", s.handleNewRecord)
			r.Post("/options", s.handleOptions)
		})
		r.Post("/markers/{id}/select", s.handleSelect)
		r.Put("/mode", s.handleMode)
		r.Put("/options/{key}", s.handleSetOption)
		r.Get("/view", s.handleView)
		r.Get("/columns", s.handleColumns)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// Watch publishes a view event each time the scene changes, until ctx is done.
func (s *Server) Watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.broker.Changes():
			if err := s.broker.Publish(EventView, s.view(-1)); err != nil {
				zap.L().Warn("server: publish view failed", zap.Error(err))
			}
		}
	}
}

// ViewResponse is the body of GET /api/view and of view events.
type ViewResponse struct {
	Scene render.View `json:"scene"`
	State panel.State `json:"state"`
}

func (s *Server) view(zoom int) ViewResponse {
	return ViewResponse{Scene: s.scene.View(zoom), State: s.session.State()}
}

type recordRequest struct {
	Record   *model.Record      `json:"record"`
	Mappings model.FieldMapping `json:"mappings"`
}

type recordsRequest struct {
	TableID  string             `json:"tableId"`
	Records  []model.Record     `json:"records"`
	Mappings model.FieldMapping `json:"mappings"`
}

type optionsRequest struct {
	Options     map[string]any `json:"options"`
	Interaction model.Access   `json:"interaction"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type optionRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "session": s.session.ID()})
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Record == nil {
		writeError(w, http.StatusBadRequest, "record is required")
		return
	}
	s.session.OnRecord(r.Context(), *req.Record, req.Mappings)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	var req recordsRequest
	if !decode(w, r, &req) {
		return
	}
	s.session.OnRecords(r.Context(), req.TableID, req.Records, req.Mappings)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleNewRecord(w http.ResponseWriter, _ *http.Request) {
	s.session.OnNewRecord()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	var req optionsRequest
	if !decode(w, r, &req) {
		return
	}
	s.session.OnOptions(req.Options, req.Interaction)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	if !s.session.SelectMarker(r.Context(), id) {
		writeError(w, http.StatusNotFound, "no marker for record")
		return
	}
	writeJSON(w, http.StatusOK, map[string]model.RecordID{"selected": id})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decode(w, r, &req) {
		return
	}
	mode, ok := model.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, "mode must be single or multi")
		return
	}
	if err := s.session.SetMode(r.Context(), mode); err != nil {
		zap.L().Error("server: set mode failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save mode")
		return
	}
	writeJSON(w, http.StatusOK, s.session.Options())
}

func (s *Server) handleSetOption(w http.ResponseWriter, r *http.Request) {
	var req optionRequest
	if !decode(w, r, &req) {
		return
	}
	key := chi.URLParam(r, "key")
	switch key {
	case model.OptionMode, model.OptionMapSource, model.OptionMapCopyright:
	default:
		writeError(w, http.StatusNotFound, "unknown option")
		return
	}
	if err := s.session.SetOption(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.session.Options())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	zoom := -1
	if raw := r.URL.Query().Get("zoom"); raw != "" {
		z, err := strconv.Atoi(raw)
		if err != nil || z < 0 {
			writeError(w, http.StatusBadRequest, "invalid zoom")
			return
		}
		zoom = z
	}
	writeJSON(w, http.StatusOK, s.view(zoom))
}

func (s *Server) handleColumns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Contract())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	id, events, cancel := s.broker.Subscribe()
	defer cancel()
	log := zap.L().With(zap.String("subscriber", id.String()))
	log.Debug("server: event stream opened")

	snapshot, err := newEvent(EventView, s.view(-1))
	if err == nil {
		_ = writeSSEEvent(w, snapshot)
	}
	flusher.Flush()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Debug("server: event stream closed")
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				log.Debug("server: event stream write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		zap.L().Debug("server: invalid request body", zap.String("path", r.URL.Path), zap.Error(eris.Wrap(err, "decode")))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
