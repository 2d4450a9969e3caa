package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"encoding/json"
	"log/slog"

	"murmur/internal/api"
	"murmur/internal/artifact"
	"murmur/internal/config"
	"murmur/internal/fileutil"
	"murmur/internal/logging"
	"murmur/internal/pool"
)

// maxUploadBytes bounds a single submitted container. Audio payloads are
// opus at 24 kbit/s, so even feature-length inputs stay far below this.
const maxUploadBytes = 256 << 20

type apiServer struct {
	bind      string
	uploadDir string
	logger    *slog.Logger
	daemon    *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:      strings.TrimSpace(cfg.Paths.APIBind),
		uploadDir: cfg.Paths.UploadDir,
		logger:    logger,
		daemon:    d,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/pool/status", srv.handlePoolStatus)
	mux.HandleFunc("/tasks/submit", srv.handleSubmit)
	mux.HandleFunc("/tasks", srv.handleTaskList)
	mux.HandleFunc("/tasks/", srv.handleTask)
	mux.HandleFunc("/stats", srv.handleStats)

	srv.server = &http.Server{
		Handler:           srv.recoverPanics(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
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

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// recoverPanics maps any handler panic to a generic 500 without leaking
// internals to the caller.
func (s *apiServer) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log().Error("handler panic",
					logging.String("path", r.URL.Path),
					logging.Any("panic", rec),
				)
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	health := "healthy"
	if !status.WorkerRunning {
		health = "unhealthy"
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:        health,
		WorkerRunning: status.WorkerRunning,
		PoolStatus:    status.Pool,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *apiServer) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.pool.Status())
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.pool.Status().IsFull {
		s.writeError(w, http.StatusTooManyRequests, "task pool is full")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	taskID := strings.TrimSpace(r.FormValue("task_id"))
	if taskID == "" {
		s.writeError(w, http.StatusBadRequest, "task_id is required")
		return
	}
	file, header, err := r.FormFile("task_file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "task_file is required")
		return
	}
	defer file.Close()
	if !strings.HasSuffix(header.Filename, artifact.ContainerExt) {
		s.writeError(w, http.StatusBadRequest, "task file must be an encrypted archive ("+artifact.ContainerExt+")")
		return
	}

	container, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read task file")
		return
	}

	// Validate before admission so a corrupt or mis-encrypted container
	// never occupies a pool slot.
	meta, _, err := artifact.Decode(container, artifact.SharedPassword)
	if err != nil {
		s.log().Warn("rejected task container",
			logging.String("task_id", taskID),
			logging.Error(err),
		)
		s.writeError(w, http.StatusBadRequest, "invalid task file format or encryption")
		return
	}

	artifactPath := filepath.Join(s.uploadDir, taskID+artifact.ContainerExt)
	if err := fileutil.WriteFileAtomic(artifactPath, container, 0o600); err != nil {
		s.log().Error("failed to store upload",
			logging.String("task_id", taskID),
			logging.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "failed to store task file")
		return
	}

	task := pool.NewTask(taskID, meta, artifactPath)
	if !s.daemon.pool.TryAdmit(task) {
		_ = fileutil.RemoveIfExists(artifactPath)
		s.writeError(w, http.StatusTooManyRequests, "task pool is full")
		return
	}

	s.log().Info("task submitted",
		logging.String("task_id", taskID),
		logging.String("filename", meta.Filename),
		logging.String("model", meta.Model),
	)
	s.writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: "task submitted successfully",
		Data:    map[string]any{"task_id": taskID},
	})
}

// handleTask dispatches the /tasks/{id}... routes. The mux cannot express
// these patterns directly, so the tail of the path is parsed by hand.
func (s *apiServer) handleTask(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/tasks/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodDelete {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.cancelTask(w, parts[0])
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.taskStatus(w, parts[0])
	case len(parts) == 2 && parts[1] == "result":
		switch r.Method {
		case http.MethodGet:
			s.taskResult(w, r, parts[0])
		case http.MethodDelete:
			s.clearResult(w, r, parts[0])
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case len(parts) == 3 && parts[1] == "result" && parts[2] == "download":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.downloadResult(w, r, parts[0])
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) taskStatus(w http.ResponseWriter, id string) {
	task, ok := s.daemon.pool.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromTask(task))
}

// taskResult reports null content while the task is still in the pool.
// Completed tasks leave the pool, so pool presence means "not done".
func (s *apiServer) taskResult(w http.ResponseWriter, r *http.Request, id string) {
	if task, ok := s.daemon.pool.Get(id); ok {
		s.writeJSON(w, http.StatusOK, api.TaskResult{
			TaskID: id,
			Status: string(task.Status),
		})
		return
	}

	result, err := s.daemon.pool.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, pool.ErrResultNotFound) {
			s.writeError(w, http.StatusNotFound, "task not found")
			return
		}
		s.log().Error("failed to load result", logging.String("task_id", id), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get task result")
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResult{
		TaskID:     id,
		SRTContent: &result.Content,
		Status:     string(pool.StatusCompleted),
	})
}

func (s *apiServer) downloadResult(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.daemon.pool.GetResult(r.Context(), id)
	if err != nil {
		if errors.Is(err, pool.ErrResultNotFound) {
			s.writeError(w, http.StatusNotFound, "task result not found")
			return
		}
		s.log().Error("failed to load result", logging.String("task_id", id), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to download task result")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.srt", id))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, result.Content)
}

func (s *apiServer) clearResult(w http.ResponseWriter, r *http.Request, id string) {
	cleared, err := s.daemon.pool.ClearResult(r.Context(), id)
	if err != nil {
		s.log().Error("failed to clear result", logging.String("task_id", id), logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to clear task result")
		return
	}
	if !cleared {
		s.writeError(w, http.StatusNotFound, "task result not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: "task result cleared successfully",
	})
}

func (s *apiServer) cancelTask(w http.ResponseWriter, id string) {
	if !s.daemon.pool.Cancel(id) {
		s.writeError(w, http.StatusNotFound, "task not found or cannot be cancelled")
		return
	}
	s.log().Info("task cancelled", logging.String("task_id", id))
	s.writeJSON(w, http.StatusOK, api.Response{
		Success: true,
		Message: "task cancelled successfully",
	})
}

func (s *apiServer) handleTaskList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tasks := s.daemon.pool.List()
	results, err := s.daemon.pool.ListResults(r.Context())
	if err != nil {
		s.log().Error("failed to list results", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	payload := api.TaskList{
		Tasks:   make([]api.TaskStatus, 0, len(tasks)),
		Results: make([]api.ResultSummary, 0, len(results)),
	}
	for _, task := range tasks {
		payload.Tasks = append(payload.Tasks, api.FromTask(task))
	}
	for _, result := range results {
		payload.Results = append(payload.Results, api.FromResult(result))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	counts := make(map[string]int)
	for status, count := range s.daemon.pool.CountsByStatus() {
		counts[string(status)] = count
	}
	results, err := s.daemon.pool.ListResults(r.Context())
	if err != nil {
		s.log().Error("failed to list results", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, api.Stats{
		PoolStatus:  s.daemon.pool.Status(),
		TaskCounts:  counts,
		Worker:      api.WorkerStatus{Running: s.daemon.loop.Running()},
		ResultCount: len(results),
	})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
