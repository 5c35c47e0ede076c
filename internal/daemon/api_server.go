package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"scribe/internal/api"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
)

const maxRequestBytes = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/transcribe", authMiddleware(token, srv.handleSubmit))
	mux.HandleFunc("/status/", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/tasks", authMiddleware(token, srv.handleTasks))
	mux.HandleFunc("/tasks/", authMiddleware(token, srv.handleTaskItem))
	mux.HandleFunc("/monitor/", authMiddleware(token, srv.handleMonitor))
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/ping", srv.handlePing)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr returns the bound listen address once the server started.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	var req api.SubmitRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, services.KindValidation, "invalid request body")
		return
	}

	task, err := s.daemon.Submit(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.SubmitResponse{
		TaskID:         task.ID,
		Status:         string(task.Status),
		EstimatedTime:  task.EstimatedTime,
		CheckStatusURL: "/status/" + task.ID,
	})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/status/")
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, services.KindNotFound, "task not found")
		return
	}
	task, err := s.daemon.GetTask(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTask(task))
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, services.KindValidation, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}

	tasks, err := s.daemon.ListTasks(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskListResponse{Tasks: api.FromTasks(tasks)})
}

func (s *apiServer) handleTaskItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tasks/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, services.KindNotFound, "task not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := s.daemon.RemoveTask(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusNoContent, nil)
	case action == "cancel" && r.Method == http.MethodPost:
		task, err := s.daemon.CancelTask(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromTask(task))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
	}
}

func (s *apiServer) handleMonitor(w http.ResponseWriter, r *http.Request) {
	mon := s.daemon.Monitor()
	if mon == nil {
		s.writeError(w, http.StatusBadRequest, services.KindValidation, "folder monitor not configured")
		return
	}

	action := strings.TrimPrefix(r.URL.Path, "/monitor/")
	switch {
	case action == "status" && r.Method == http.MethodGet:
	case action == "start" && r.Method == http.MethodPost:
		if err := mon.Start(r.Context()); err != nil && !strings.Contains(err.Error(), "already running") {
			s.writeServiceError(w, err)
			return
		}
	case action == "stop" && r.Method == http.MethodPost:
		mon.Stop()
	case action == "check-now" && r.Method == http.MethodPost:
		if err := mon.CheckNow(r.Context()); err != nil {
			s.writeServiceError(w, err)
			return
		}
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}

	status := mon.Status()
	s.writeJSON(w, http.StatusOK, api.MonitorStatus{
		Running:        status.Running,
		FolderID:       status.FolderID,
		IntervalSecs:   int(status.Interval / time.Second),
		LastCheck:      api.FormatTime(status.LastCheck),
		LastError:      status.LastError,
		ProcessedCount: status.ProcessedCount,
		PendingCount:   status.PendingCount,
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	health, err := s.daemon.Health(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *apiServer) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "", "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps classified service errors onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	kind := services.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindCapacity:
		status = http.StatusTooManyRequests
	}
	s.writeError(w, status, kind, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil || status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Kind: kind})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
