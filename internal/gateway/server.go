package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/usecase/appstate"
)

// Journal нужен гейтвею только для чтения истории отправок.
type Journal interface {
	ListRecent(ctx context.Context, limit int) ([]domain.SubmissionRecord, error)
}

// Server — локальный HTTP-интерфейс для слоя отображения. Дисплей рисует
// снимки состояния и шлёт действия пользователя; вся логика живёт в
// контроллере.
type Server struct {
	router  chi.Router
	state   *appstate.Controller
	journal Journal
	log     zerolog.Logger
}

// NewServer создаёт сервер с базовыми middlewares. journal может быть nil.
func NewServer(state *appstate.Controller, journal Journal, logger zerolog.Logger) *Server {
	s := &Server{state: state, journal: journal, log: logger}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/state", s.handleState)
		api.Post("/directory/refresh", s.handleDirectoryRefresh)
		api.Post("/departments/{id}/select", s.handleSelectDepartment)
		api.Post("/session/back", s.handleBack)
		api.Post("/refresh", s.handleRefresh)
		api.Post("/submission/open", s.handleOpenSubmission)
		api.Post("/submission/close", s.handleCloseSubmission)
		api.Post("/feedback", s.handleSubmitFeedback)
		api.Post("/notice/dismiss", s.handleDismissNotice)
		api.Get("/submissions", s.handleListSubmissions)
	})
	s.router = r
	return s
}

// Router отдаёт настроенный chi.Router.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleDirectoryRefresh(w http.ResponseWriter, r *http.Request) {
	accepted := s.state.LoadDirectory()
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"accepted": accepted,
		"state":    s.state.Snapshot(),
	})
}

func (s *Server) handleSelectDepartment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid department id")
		return
	}
	if err := s.state.SelectDepartment(id); err != nil {
		switch {
		case errors.Is(err, appstate.ErrUnknownDepartment):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, appstate.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleBack(w http.ResponseWriter, r *http.Request) {
	s.state.Back()
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	accepted := s.state.RefreshServices()
	status := http.StatusAccepted
	if !accepted {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"accepted": accepted,
		"state":    s.state.Snapshot(),
	})
}

type openSubmissionRequest struct {
	TicketNumber string `json:"token_number"`
}

func (s *Server) handleOpenSubmission(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req openSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.state.OpenSubmission(req.TicketNumber); err != nil {
		switch {
		case errors.Is(err, appstate.ErrUnknownTicket):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, appstate.ErrNoDepartment):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, appstate.ErrClosed):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleCloseSubmission(w http.ResponseWriter, r *http.Request) {
	s.state.CloseSubmission()
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

type feedbackRequest struct {
	Rate        int    `json:"rate"`
	TokenNumber string `json:"token_number"`
	Comment     string `json:"comment"`
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.state.SubmitFeedback(r.Context(), domain.FeedbackSubmission{
		Rating:       req.Rate,
		TicketNumber: req.TokenNumber,
		Comment:      req.Comment,
	})
	if err != nil {
		writeJSON(w, submitErrorStatus(err), map[string]any{
			"result": result,
			"error":  err.Error(),
			"kind":   domain.KindOf(err),
			"state":  s.state.Snapshot(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": result,
		"state":  s.state.Snapshot(),
	})
}

func (s *Server) handleDismissNotice(w http.ResponseWriter, r *http.Request) {
	s.state.DismissNotice()
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, "journal is not configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	records, err := s.journal.ListRecent(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("gateway: чтение журнала не удалось")
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": toSubmissionDTOs(records)})
}

// submitErrorStatus отображает вид отказа на HTTP-код для дисплея.
func submitErrorStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindNoConnectivity:
		return http.StatusBadGateway
	case domain.KindServerRejection, domain.KindHTTPStatus, domain.KindMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type submissionDTO struct {
	AttemptID    string     `json:"attempt_id"`
	TicketNumber string     `json:"token_number"`
	Rate         int        `json:"rate"`
	Comment      string     `json:"comment,omitempty"`
	Outcome      string     `json:"outcome,omitempty"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

func toSubmissionDTOs(records []domain.SubmissionRecord) []submissionDTO {
	dtos := make([]submissionDTO, 0, len(records))
	for _, record := range records {
		dtos = append(dtos, submissionDTO{
			AttemptID:    record.AttemptID,
			TicketNumber: record.TicketNumber,
			Rate:         record.Rating,
			Comment:      record.Comment,
			Outcome:      string(record.Outcome),
			ErrorKind:    record.ErrorKind,
			CreatedAt:    record.CreatedAt,
			FinishedAt:   record.FinishedAt,
		})
	}
	return dtos
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}
