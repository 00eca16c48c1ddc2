// Package httpapi exposes the synchronous event transport plus health and
// metrics endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/easel-bot/easel/internal/artifact"
	"github.com/easel-bot/easel/internal/bot"
	"github.com/easel-bot/easel/internal/config"
	"github.com/easel-bot/easel/internal/observability"
)

type Server struct {
	cfg       config.Config
	router    *bot.Router
	artifacts *artifact.Store
	metrics   *observability.Metrics
}

func New(cfg config.Config, router *bot.Router, artifacts *artifact.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:       cfg,
		router:    router,
		artifacts: artifacts,
		metrics:   metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/events", s.handleEvent)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"enabled": s.cfg.Enabled,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
		"mode":   s.cfg.GeminiMode,
	})
}

// wireReply is a Reply with the artifact bytes inlined, so request/response
// callers never need filesystem access.
type wireReply struct {
	Kind  bot.ReplyKind `json:"kind"`
	Text  string        `json:"text,omitempty"`
	Image []byte        `json:"image,omitempty"`
}

type eventResponse struct {
	Replies []wireReply `json:"replies"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev bot.Event
	if err := decodeJSON(r, &ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(ev.ChatID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "chat_id is required")
		return
	}
	switch ev.Kind {
	case bot.EventText, bot.EventImage:
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "kind must be text or image")
		return
	}

	replies := s.router.Handle(r.Context(), ev, nil)

	out := eventResponse{Replies: make([]wireReply, 0, len(replies))}
	for _, reply := range replies {
		wr := wireReply{Kind: reply.Kind, Text: reply.Text}
		if reply.Kind == bot.ReplyImage {
			data, err := s.artifacts.Read(reply.ImagePath)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "artifact_read_failed", err.Error())
				return
			}
			wr.Image = data
		}
		out.Replies = append(out.Replies, wr)
	}
	respondJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
