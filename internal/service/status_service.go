package service

import (
	"context"
	"log/slog"
	"time"

	"study-buddy/backend/internal/llm"
)

// Pinger is implemented by providers that can report their reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status describes the generation backend for health reporting.
type Status struct {
	Backend   string            `json:"backend"`
	Models    map[string]string `json:"models"`
	Reachable bool              `json:"reachable"`
	Error     string            `json:"error,omitempty"`
	Sessions  int               `json:"sessions"`
}

// StatusService reports which backend and models are in use.
type StatusService struct {
	ws       *Workspace
	provider llm.Provider
	backend  string
	models   map[string]string
}

func NewStatusService(ws *Workspace, provider llm.Provider, backend string, models map[string]string) *StatusService {
	return &StatusService{ws: ws, provider: provider, backend: backend, models: models}
}

// Status pings the provider when it supports it. Providers without a ping
// are assumed reachable.
func (s *StatusService) Status(ctx context.Context) *Status {
	st := &Status{
		Backend:   s.backend,
		Models:    s.models,
		Reachable: true,
		Sessions:  len(s.ws.Sessions()),
	}
	if p, ok := s.provider.(Pinger); ok {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			slog.Warn("Provider ping failed", "backend", s.backend, "error", err)
			st.Reachable = false
			st.Error = err.Error()
		}
	}
	return st
}
