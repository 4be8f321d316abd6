package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"harmonika/internal/api"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewChatMux(h *api.ChatHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/sessions", h.StartSession)
	mux.HandleFunc("GET /api/chat/session", h.Session)
	mux.HandleFunc("POST /api/chat/messages", h.SendMessage)
	mux.HandleFunc("POST /api/chat/location", h.ShareLocation)
	mux.HandleFunc("POST /api/chat/typing", h.Typing)
	mux.HandleFunc("GET /api/chat/status", h.Status)
	mux.HandleFunc("GET /api/chat/watch", h.Watch)
	return mux
}

func NewAPIServer(h *api.ChatHandler, addr string) *APIServer {
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: NewChatMux(h),
		},
	}
}

func (s *APIServer) Start() error {
	log.Printf("Chat API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
