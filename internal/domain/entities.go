package domain

import "time"

// FieldPlaceholder подставляется вместо отсутствующих полей талона.
const FieldPlaceholder = "N/A"

// Department описывает подразделение, доступное для выбора.
type Department struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Logo        string `json:"logo,omitempty"`
	LogoURL     string `json:"logo_url,omitempty"`
}

// CompletedService представляет завершённый талон, ожидающий оценки.
// Список полностью заменяется при каждом опросе, идентичность между
// опросами не сохраняется.
type CompletedService struct {
	TicketNumber   string `json:"ticket_number"`
	CounterName    string `json:"counter_name"`
	ServiceName    string `json:"service_name"`
	DepartmentName string `json:"department_name"`
}

// FeedbackSubmission — оценка одного талона. Живёт только на время отправки.
type FeedbackSubmission struct {
	Rating       int
	TicketNumber string
	Comment      string
}

// Valid сообщает, допустима ли оценка для отправки.
func (f FeedbackSubmission) Valid() bool {
	return f.Rating >= 1 && f.Rating <= 5
}

// SubmissionOutcome описывает исход попытки отправки.
type SubmissionOutcome string

const (
	// OutcomeAccepted — сервер принял отзыв.
	OutcomeAccepted SubmissionOutcome = "accepted"
	// OutcomeRejected — сервер отклонил отзыв.
	OutcomeRejected SubmissionOutcome = "rejected"
	// OutcomeFailed — отправка не дошла до сервера.
	OutcomeFailed SubmissionOutcome = "failed"
)

// SubmissionRecord — запись журнала о попытке отправки отзыва.
type SubmissionRecord struct {
	AttemptID    string
	TicketNumber string
	Rating       int
	Comment      string
	Outcome      SubmissionOutcome
	ErrorKind    string
	CreatedAt    time.Time
	FinishedAt   *time.Time
}
