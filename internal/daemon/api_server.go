package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderflow/internal/api"
	"orderflow/internal/config"
	"orderflow/internal/logging"
	"orderflow/internal/orders"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	svc    *api.Service

	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		svc:    d.svc,
	}
	srv.handler = authMiddleware(cfg.Paths.APIToken, srv.routes())
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/work", s.handleWork)
	mux.HandleFunc("GET /api/orders", s.handleListOrders)
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", s.handleShowOrder)
	mux.HandleFunc("POST /api/orders/{id}/accept", s.handleAccept)
	mux.HandleFunc("POST /api/orders/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/orders/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/orders/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/orders/{id}/deliver", s.handleDeliver)
	mux.HandleFunc("POST /api/orders/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/orders/{id}/release", s.handleRelease)
	mux.HandleFunc("POST /api/orders/{id}/reassign", s.handleReassign)
	mux.HandleFunc("POST /api/orders/{id}/unassign", s.handleUnassign)
	mux.HandleFunc("POST /api/jobs/{id}/extension", s.handleExtension)
	mux.HandleFunc("POST /api/sweeps/timeouts", s.handleTimeoutSweep)
	mux.HandleFunc("POST /api/sweeps/escalation", s.handleEscalation)
	mux.HandleFunc("GET /api/outbox", s.handleOutbox)
	mux.HandleFunc("POST /api/outbox/dispatch", s.handleDispatch)
	return withRequestID(mux)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// listen binds the API address and prepares a fresh server for it. An
// http.Server cannot serve again after Shutdown, so each Start gets its own.
func (s *apiServer) listen() error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Unlock()
	return nil
}

// serve runs the HTTP server until ctx ends, then shuts it down.
func (s *apiServer) serve(ctx context.Context) error {
	s.mu.Lock()
	ln, srv := s.listener, s.server
	s.mu.Unlock()
	if ln == nil {
		<-ctx.Done()
		return nil
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("api server listening", logging.String("address", ln.Addr().String()))

	defer s.clearListener(ln)
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("api shutdown incomplete", logging.Error(err))
		}
		// Serve returns once Shutdown has closed the listener, or at once
		// when Shutdown won the race against it.
		<-errCh
		return nil
	}
}

func (s *apiServer) clearListener(ln net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == ln {
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	s.respond(w, r, status, err)
}

func (s *apiServer) handleWork(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := s.svc.ListWork(r.Context(), query.Get("worker"), strings.ToUpper(query.Get("stage")))
	s.respond(w, r, api.OrderListResponse{Items: items}, err)
}

func (s *apiServer) handleListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	items, err := s.svc.ListOrders(r.Context(), query["status"], query.Get("owner"), limit)
	s.respond(w, r, api.OrderListResponse{Items: items}, err)
}

func (s *apiServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req api.CreateOrderRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, err := s.svc.CreateOrder(r.Context(), req)
	if err == nil {
		s.writeJSON(w, http.StatusCreated, order)
		return
	}
	s.respond(w, r, nil, err)
}

func (s *apiServer) handleShowOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := s.svc.ShowOrder(r.Context(), r.PathValue("id"))
	s.respond(w, r, detail, err)
}

func (s *apiServer) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req api.AcceptRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Stage = strings.ToUpper(req.Stage)
	resp, err := s.svc.Accept(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Stage = strings.ToUpper(req.Stage)
	resp, err := s.svc.Submit(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Approve(r.Context(), r.PathValue("id"))
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	var req api.RejectRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Reject(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req api.DeliverRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Deliver(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req api.CancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Cancel(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Release(r.Context(), r.PathValue("id"))
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleReassign(w http.ResponseWriter, r *http.Request) {
	var req api.ReassignRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Reassign(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleUnassign(w http.ResponseWriter, r *http.Request) {
	var req api.UnassignRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp, err := s.svc.Unassign(r.Context(), r.PathValue("id"), req)
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleExtension(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Extend(r.Context(), r.PathValue("id"))
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleTimeoutSweep(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.RunTimeoutSweep(r.Context())
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleEscalation(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.RunEscalation(r.Context())
	s.respond(w, r, resp, err)
}

func (s *apiServer) handleOutbox(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	entries, err := s.svc.ListOutbox(r.Context(), query.Get("status"), limit)
	s.respond(w, r, map[string]any{"items": entries}, err)
}

func (s *apiServer) handleDispatch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.DispatchOutbox(r.Context())
	s.respond(w, r, resp, err)
}

// decode reads a JSON body into dst. An empty body leaves dst zero.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		s.respond(w, r, nil, orders.Wrap(orders.ErrInvalidRequest, "decode body", err.Error()))
		return false
	}
	return true
}

func (s *apiServer) respond(w http.ResponseWriter, r *http.Request, payload any, err error) {
	if err == nil {
		s.writeJSON(w, http.StatusOK, payload)
		return
	}
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, api.ErrorBody(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}
