package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	configpkg "github.com/drblury/netshell/internal/runtime/config"
	"github.com/drblury/netshell/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
)

type adminServer struct {
	srv      *http.Server
	listener net.Listener
}

// AdminHandler returns the admin API: Prometheus metrics on /metrics, server
// statistics on /api/stats and connected clients on /api/clients.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/stats", s.handleGetStats)
	mux.HandleFunc("/api/clients", s.handleGetClients)
	return mux
}

// AdminAddr returns the address the admin server listens on, or "" when it
// is not running.
func (s *Server) AdminAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.admin == nil {
		return ""
	}
	return s.admin.listener.Addr().String()
}

func (s *Server) startAdmin() error {
	if !s.conf.MetricsEnabled {
		return nil
	}
	port := s.conf.MetricsPort
	if port == 0 {
		port = configpkg.DefaultMetricsPort
	}

	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen admin %s: %w", addr, err)
	}
	admin := &adminServer{
		srv:      &http.Server{Handler: s.AdminHandler(), ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}

	s.mu.Lock()
	s.admin = admin
	s.mu.Unlock()

	s.Logger.Info("Starting admin server", loggingpkg.LogFields{"address": ln.Addr().String()})
	go func() {
		if err := admin.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error("Admin server failed", err, loggingpkg.LogFields{"address": addr})
		}
	}()
	return nil
}

func (s *Server) stopAdmin() error {
	s.mu.Lock()
	admin := s.admin
	s.admin = nil
	s.mu.Unlock()

	if admin == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return admin.srv.Shutdown(ctx)
}

type clientsResponse struct {
	Count   int          `json:"count"`
	Clients []ClientInfo `json:"clients"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if s.writeCORS(w, r) {
		return
	}
	stats, err := s.ServerStats()
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetClients(w http.ResponseWriter, r *http.Request) {
	if s.writeCORS(w, r) {
		return
	}
	resp := clientsResponse{Clients: []ClientInfo{}}
	for _, client := range s.clients.All() {
		info, err := client.Info()
		if err != nil {
			info = ClientInfo{ID: client.ID()}
		}
		resp.Clients = append(resp.Clients, info)
	}
	resp.Count = len(resp.Clients)
	s.writeJSON(w, http.StatusOK, resp)
}

// writeCORS sets the CORS headers and reports whether the request was a
// preflight that has been answered.
func (s *Server) writeCORS(w http.ResponseWriter, r *http.Request) bool {
	if len(s.conf.AdminCORSAllowedOrigins) > 0 {
		if allowed := s.allowedCORSOrigin(r.Header.Get("Origin")); allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func (s *Server) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.conf.AdminCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := jsoncodec.Marshal(v)
	if err != nil {
		s.Logger.Error("Failed to encode admin response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", jsoncodec.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
