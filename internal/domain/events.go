package domain

import (
	"context"
	"time"
)

// FeedbackEvent описывает исход одной попытки отправки отзыва.
// Публикуется в очередь аналитики после завершения попытки.
type FeedbackEvent struct {
	AttemptID    string            `json:"attempt_id"`
	DepartmentID int64             `json:"department_id,omitempty"`
	TicketNumber string            `json:"token_number"`
	Rating       int               `json:"rate"`
	Comment      string            `json:"comment,omitempty"`
	Outcome      SubmissionOutcome `json:"outcome"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	OccurredAt   time.Time         `json:"occurred_at"`
}

// FeedbackEventQueue публикует события об отправленных отзывах.
// Публикация не влияет на исход самой отправки.
type FeedbackEventQueue interface {
	Publish(ctx context.Context, event FeedbackEvent) error
}
