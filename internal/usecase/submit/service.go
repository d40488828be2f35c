package submit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"feedback-kiosk/internal/domain"
	"feedback-kiosk/internal/infra/metrics"
)

// Refresher дёргает внеочередной опрос талонов после отправки.
type Refresher interface {
	Refresh() bool
}

// Result описывает исход отправки для слоя отображения.
type Result struct {
	AttemptID string                   `json:"attempt_id"`
	Outcome   domain.SubmissionOutcome `json:"outcome"`
	Message   string                   `json:"message,omitempty"`
	KeepOpen  bool                     `json:"keep_open"`
}

// Service отправляет оценку талона. Ровно одна сетевая попытка; по
// каждому талону — не больше одной одновременной отправки.
type Service struct {
	api     domain.FeedbackSubmitAPI
	poller  Refresher
	journal domain.SubmissionJournal
	events  domain.FeedbackEventQueue
	log     zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService создаёт сервис отправки. journal и events могут быть nil.
func NewService(api domain.FeedbackSubmitAPI, poller Refresher, journal domain.SubmissionJournal, events domain.FeedbackEventQueue, logger zerolog.Logger) *Service {
	return &Service{
		api:      api,
		poller:   poller,
		journal:  journal,
		events:   events,
		log:      logger,
		inFlight: make(map[string]struct{}),
	}
}

// Submit проверяет оценку, выполняет одну попытку отправки и после неё —
// независимо от исхода — дёргает опрос талонов. Без выбранной оценки
// сетевой вызов не делается вовсе.
func (s *Service) Submit(ctx context.Context, departmentID int64, sub domain.FeedbackSubmission) (Result, error) {
	if !sub.Valid() {
		return Result{Outcome: domain.OutcomeRejected}, domain.ErrNoRating
	}
	if !s.acquire(sub.TicketNumber) {
		return Result{Outcome: domain.OutcomeRejected}, domain.ErrSubmissionInFlight
	}
	defer s.release(sub.TicketNumber)
	defer s.poller.Refresh()

	attemptID := uuid.NewString()
	occurredAt := time.Now().UTC()
	s.saveAttempt(attemptID, sub, occurredAt)

	err := s.api.SubmitFeedback(ctx, sub)
	outcome := classifyOutcome(err)
	kind := string(domain.KindOf(err))
	metrics.IncSubmitOutcome(string(outcome))
	s.markOutcome(attemptID, outcome, kind)
	s.publish(domain.FeedbackEvent{
		AttemptID:    attemptID,
		DepartmentID: departmentID,
		TicketNumber: sub.TicketNumber,
		Rating:       sub.Rating,
		Comment:      sub.Comment,
		Outcome:      outcome,
		ErrorKind:    kind,
		OccurredAt:   occurredAt,
	})

	if err != nil {
		s.log.Warn().Err(err).Str("ticket", sub.TicketNumber).Str("attempt", attemptID).Msg("submit: отправка не удалась")
		return Result{
			AttemptID: attemptID,
			Outcome:   outcome,
			Message:   err.Error(),
			KeepOpen:  domain.Recoverable(err),
		}, err
	}
	s.log.Info().Str("ticket", sub.TicketNumber).Str("attempt", attemptID).Int("rate", sub.Rating).Msg("submit: отзыв принят")
	return Result{AttemptID: attemptID, Outcome: domain.OutcomeAccepted}, nil
}

func (s *Service) acquire(ticket string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[ticket]; busy {
		return false
	}
	s.inFlight[ticket] = struct{}{}
	return true
}

func (s *Service) release(ticket string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, ticket)
}

// Журнал и очередь событий — побочная бухгалтерия: их сбои логируются и
// не влияют на исход отправки. Контекст берём свой, чтобы запись дошла,
// даже если запрос дисплея уже завершился.
func (s *Service) saveAttempt(attemptID string, sub domain.FeedbackSubmission, occurredAt time.Time) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.journal.SaveAttempt(ctx, domain.SubmissionRecord{
		AttemptID:    attemptID,
		TicketNumber: sub.TicketNumber,
		Rating:       sub.Rating,
		Comment:      sub.Comment,
		CreatedAt:    occurredAt,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("attempt", attemptID).Msg("submit: журнал недоступен")
	}
}

func (s *Service) markOutcome(attemptID string, outcome domain.SubmissionOutcome, kind string) {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.MarkOutcome(ctx, attemptID, outcome, kind); err != nil {
		s.log.Warn().Err(err).Str("attempt", attemptID).Msg("submit: не удалось записать исход")
	}
}

func (s *Service) publish(event domain.FeedbackEvent) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("attempt", event.AttemptID).Msg("submit: событие не опубликовано")
	}
}

func classifyOutcome(err error) domain.SubmissionOutcome {
	switch domain.KindOf(err) {
	case domain.KindNone:
		return domain.OutcomeAccepted
	case domain.KindServerRejection, domain.KindHTTPStatus, domain.KindValidation:
		return domain.OutcomeRejected
	default:
		return domain.OutcomeFailed
	}
}
