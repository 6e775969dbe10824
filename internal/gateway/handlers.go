package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/strandlabs/loom/internal/chat"
	"github.com/strandlabs/loom/internal/errdefs"
	"github.com/strandlabs/loom/internal/sessions"
	"github.com/strandlabs/loom/pkg/models"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	health, err := s.chat.Health(r.Context())
	if err != nil {
		s.writeError(w, r, errdefs.Wrap(errdefs.CodeDatabaseConnection, "health check", err))
		return
	}
	status := http.StatusOK
	if !health.Connected {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"status":  statusWord(health.Connected),
		"backend": health.Backend,
	})
}

func statusWord(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

type createSessionRequest struct {
	Title        string         `json:"title"`
	Provider     string         `json:"provider"`
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	session, err := s.chat.CreateSession(r.Context(), chat.CreateSessionParams{
		Title:        req.Title,
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Metadata:     req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	opts := sessions.ListOptions{}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		opts.Status = models.SessionStatus(v)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, errdefs.New(errdefs.CodeValidationError, "limit must be a non-negative integer"))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, r, errdefs.New(errdefs.CodeValidationError, "offset must be a non-negative integer"))
			return
		}
		opts.Offset = n
	}

	list, err := s.chat.ListSessions(r.Context(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": list,
		"count":    len(list),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.chat.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sendMessageRequest struct {
	Content      string `json:"content"`
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	reply, err := s.chat.SendMessage(r.Context(), r.PathValue("id"), req.Content, chat.SendOptions{
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	aborted := s.chat.Abort(r.PathValue("id"))
	s.writeJSON(w, http.StatusOK, map[string]any{"aborted": aborted})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"providers": s.chat.Providers()})
}

func decodeBody(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return errdefs.Wrap(errdefs.CodeValidationError, "invalid request body", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error(context.Background(), "encode response", "error", err)
	}
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errdefs.CodeOf(err)
	message := err.Error()
	var typed *errdefs.Error
	if errors.As(err, &typed) {
		message = typed.Message
	}

	if s.metrics != nil {
		s.metrics.RecordError("gateway", string(code))
	}
	s.logger.Warn(r.Context(), "request failed",
		"method", r.Method, "path", r.URL.Path, "code", code, "error", message)

	var resp errorResponse
	resp.Error.Code = string(code)
	resp.Error.Message = message
	s.writeJSON(w, httpStatus(code), resp)
}

// httpStatus maps error codes onto HTTP statuses.
func httpStatus(code errdefs.Code) int {
	switch code {
	case errdefs.CodeSessionNotFound, errdefs.CodeNotFound, errdefs.CodeToolNotFound,
		errdefs.CodeFileNotFound, errdefs.CodeDirectoryNotFound, errdefs.CodeLLMModelNotFound:
		return http.StatusNotFound
	case errdefs.CodeValidationError, errdefs.CodeInvalidParams:
		return http.StatusBadRequest
	case errdefs.CodeProviderRateLimit:
		return http.StatusTooManyRequests
	case errdefs.CodeProviderAuthFailed:
		return http.StatusBadGateway
	case errdefs.CodeLLMAPIError, errdefs.CodeNetworkError:
		return http.StatusBadGateway
	case errdefs.CodeTurnAborted:
		return http.StatusConflict
	case errdefs.CodeDatabaseConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
