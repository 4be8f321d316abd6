package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"harmonika/internal/api"
)

type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminMux(h *api.AdminHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/login", h.Login)
	mux.HandleFunc("POST /admin/logout", h.Logout)

	mux.HandleFunc("GET /admin/sessions", h.RequireAuth(h.ListSessions))
	mux.HandleFunc("GET /admin/sessions/{id}", h.RequireAuth(h.GetSession))
	mux.HandleFunc("POST /admin/sessions/{id}/messages", h.RequireAuth(h.SendMessage))
	mux.HandleFunc("DELETE /admin/sessions/{id}/messages", h.RequireAuth(h.ClearMessages))
	mux.HandleFunc("POST /admin/sessions/{id}/location", h.RequireAuth(h.ShareLocation))
	mux.HandleFunc("POST /admin/sessions/{id}/read", h.RequireAuth(h.MarkAsRead))
	mux.HandleFunc("GET /admin/sessions/{id}/typing", h.RequireAuth(h.Typing))

	mux.HandleFunc("GET /admin/status", h.RequireAuth(h.GetStatus))
	mux.HandleFunc("PUT /admin/status", h.RequireAuth(h.SetStatus))
	mux.HandleFunc("POST /admin/status/toggle", h.RequireAuth(h.ToggleStatus))

	mux.HandleFunc("GET /admin/content", h.RequireAuth(h.GetContent))
	mux.HandleFunc("PUT /admin/content", h.RequireAuth(h.PutContent))
	mux.HandleFunc("DELETE /admin/content", h.RequireAuth(h.ResetContent))

	mux.HandleFunc("GET /admin/watch", h.RequireAuth(h.Watch))
	return mux
}

func NewAdminServer(h *api.AdminHandler, addr string) *AdminServer {
	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: NewAdminMux(h),
		},
	}
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
