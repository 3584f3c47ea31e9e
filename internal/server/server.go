package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"obdscan/internal/events"
	"obdscan/internal/models"
	"obdscan/pkg/log"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Controller is the part of the session the HTTP bridge drives.
type Controller interface {
	Connect() bool
	Disconnect() bool
	ClearCodes() bool
	State() models.ConnectionState
	Clearing() bool
	Vehicle() models.VehicleInfo
	Codes() []models.DTCEntry
	Parameters() []models.VehicleParameter
	Recommendations() []models.Recommendation
	Subscribe(buffer int) (<-chan events.Event, func())
}

// StateView is the body of GET /api/state.
type StateView struct {
	State           models.ConnectionState    `json:"state"`
	Clearing        bool                      `json:"clearing"`
	Vehicle         models.VehicleInfo        `json:"vehicle"`
	Codes           []models.DTCEntry         `json:"codes"`
	Parameters      []models.VehicleParameter `json:"parameters"`
	Recommendations []models.Recommendation   `json:"recommendations"`
}

type Server struct {
	ctrl     Controller
	upgrader websocket.Upgrader
}

func New(ctrl Controller) *Server {
	return &Server{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(LogMiddleware(log.Sugar()))

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/recommendations", s.handleRecommendations)
		r.Post("/connect", s.handleConnect)
		r.Post("/disconnect", s.handleDisconnect)
		r.Post("/clear", s.handleClear)
	})
	r.Get("/ws", s.handleWS)
	return r
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Warn("Server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("Listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StateView{
		State:           s.ctrl.State(),
		Clearing:        s.ctrl.Clearing(),
		Vehicle:         s.ctrl.Vehicle(),
		Codes:           s.ctrl.Codes(),
		Parameters:      s.ctrl.Parameters(),
		Recommendations: s.ctrl.Recommendations(),
	})
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Recommendations())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Connect() {
		writeStatus(w, http.StatusConflict, "already "+s.ctrl.State().String())
		return
	}
	writeStatus(w, http.StatusAccepted, models.Connecting.String())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Disconnect() {
		writeStatus(w, http.StatusConflict, "not connected")
		return
	}
	writeStatus(w, http.StatusOK, models.Disconnected.String())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.ClearCodes() {
		writeStatus(w, http.StatusConflict, "clear already in progress")
		return
	}
	writeStatus(w, http.StatusAccepted, "clearing")
}

// handleWS streams every session event as a JSON text message. A client
// that cannot keep up misses events instead of stalling the session.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	ch, cancel := s.ctrl.Subscribe(64)
	log.Debug("Websocket client connected", zap.String("remote", r.RemoteAddr))

	// reader: detects the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			cancel()
			conn.Close()
			log.Debug("Websocket client disconnected", zap.String("remote", r.RemoteAddr))
		}()
		for {
			select {
			case <-done:
				return
			case e, ok := <-ch:
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					log.Warn("Failed to encode event", zap.Error(err))
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("Failed to write response", zap.Error(err))
	}
}

func writeStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": msg})
}
