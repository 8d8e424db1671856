package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/park285/chess-room/internal/boardimg"
	"github.com/park285/chess-room/internal/obslog"
	"github.com/park285/chess-room/internal/room"
	"github.com/park285/chess-room/internal/rules"
	"github.com/park285/chess-room/pkg/roomproto"
	"go.uber.org/zap"
)

// Room is the read side of the match session.
type Room interface {
	Snapshot() roomproto.State
	Position() rules.Position
	Connections() []room.ConnID
}

// ResultLister serves recent finished matches.
type ResultLister interface {
	RecentResults(ctx context.Context, n int) ([]room.Result, error)
}

// Deps are the collaborators behind the HTTP surface. A nil WS or Results
// disables its route; a nil Board falls back to the default renderer.
type Deps struct {
	Room      Room
	WS        http.Handler
	Board     *boardimg.Renderer
	Results   ResultLister // optional
	StaticDir string
	Logger    *zap.Logger
}

type api struct {
	Deps
	log *zap.Logger
}

// NewRouter mounts the websocket, JSON API, board image and static files.
func NewRouter(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = obslog.L()
	}
	if d.Board == nil {
		d.Board = boardimg.New(0)
	}
	a := &api{Deps: d, log: d.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// upgrade path stays outside the response-wrapping logger
	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(requestLogger(a.log))
		r.Get("/healthz", a.healthz)
		r.Get("/api/state", a.state)
		r.Get("/api/results", a.results)
		r.Get("/board.png", a.board)
		r.Get("/", a.index)
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(filepath.Join(d.StaticDir, "static")))))
	})
	return r
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "connections": len(a.Room.Connections())})
}

func (a *api) state(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Room.Snapshot())
}

func (a *api) results(w http.ResponseWriter, r *http.Request) {
	if a.Results == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "results mirror disabled"})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	list, err := a.Results.RecentResults(r.Context(), limit)
	if err != nil {
		a.log.Warn("results_list_error", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "results unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *api) board(w http.ResponseWriter, r *http.Request) {
	flip := false
	switch r.URL.Query().Get("flip") {
	case "b", "1", "true":
		flip = true
	}
	png, err := a.Board.Render(r.Context(), a.Room.Position(), flip)
	if err != nil {
		a.log.Warn("board_render_error", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

func (a *api) index(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, filepath.Join(a.StaticDir, "index.html"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// requestLogger logs method, path, status and duration of each request.
func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
