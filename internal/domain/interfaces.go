package domain

import (
	"context"
	"time"
)

// DirectoryAPI возвращает список подразделений.
type DirectoryAPI interface {
	FetchDepartments(ctx context.Context) ([]Department, error)
}

// CompletedServiceAPI возвращает завершённые талоны подразделения.
type CompletedServiceAPI interface {
	FetchCompletedServices(ctx context.Context, departmentID int64) ([]CompletedService, error)
}

// FeedbackSubmitAPI отправляет оценку одного талона.
type FeedbackSubmitAPI interface {
	SubmitFeedback(ctx context.Context, submission FeedbackSubmission) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}

// SubmissionJournal ведёт локальный журнал попыток отправки отзывов.
type SubmissionJournal interface {
	SaveAttempt(ctx context.Context, record SubmissionRecord) error
	MarkOutcome(ctx context.Context, attemptID string, outcome SubmissionOutcome, errorKind string) error
	ListRecent(ctx context.Context, limit int) ([]SubmissionRecord, error)
}
