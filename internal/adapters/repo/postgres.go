package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"feedback-kiosk/internal/domain"
)

// Postgres реализует журнал отправок на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// EnsureSchema создаёт таблицу журнала, если её ещё нет. Киоск владеет
// своей локальной базой, внешних миграций не предполагается.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS feedback_submissions (
			attempt_id   TEXT PRIMARY KEY,
			token_number TEXT NOT NULL,
			rate         INT NOT NULL,
			comment      TEXT NOT NULL DEFAULT '',
			outcome      TEXT NOT NULL DEFAULT '',
			error_kind   TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL,
			finished_at  TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("создание схемы журнала: %w", err)
	}
	return nil
}

// SaveAttempt регистрирует начатую попытку отправки.
func (p *Postgres) SaveAttempt(ctx context.Context, record domain.SubmissionRecord) error {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO feedback_submissions (attempt_id, token_number, rate, comment, outcome, error_kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.AttemptID, record.TicketNumber, record.Rating, record.Comment,
		string(record.Outcome), record.ErrorKind, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("запись попытки: %w", err)
	}
	return nil
}

// MarkOutcome фиксирует исход завершённой попытки.
func (p *Postgres) MarkOutcome(ctx context.Context, attemptID string, outcome domain.SubmissionOutcome, errorKind string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	tag, err := p.pool.Exec(ctx, `
		UPDATE feedback_submissions
		SET outcome = $2, error_kind = $3, finished_at = $4
		WHERE attempt_id = $1`,
		attemptID, string(outcome), errorKind, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("обновление исхода: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("попытка %s не найдена", attemptID)
	}
	return nil
}

// ListRecent возвращает последние попытки, новые первыми.
func (p *Postgres) ListRecent(ctx context.Context, limit int) ([]domain.SubmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	rows, err := p.pool.Query(ctx, `
		SELECT attempt_id, token_number, rate, comment, outcome, error_kind, created_at, finished_at
		FROM feedback_submissions
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("выборка журнала: %w", err)
	}
	defer rows.Close()

	var records []domain.SubmissionRecord
	for rows.Next() {
		var (
			record   domain.SubmissionRecord
			outcome  string
			finished sql.NullTime
		)
		if err := rows.Scan(&record.AttemptID, &record.TicketNumber, &record.Rating,
			&record.Comment, &outcome, &record.ErrorKind, &record.CreatedAt, &finished); err != nil {
			return nil, fmt.Errorf("чтение строки журнала: %w", err)
		}
		record.Outcome = domain.SubmissionOutcome(outcome)
		if finished.Valid {
			t := finished.Time
			record.FinishedAt = &t
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход журнала: %w", err)
	}
	return records, nil
}

var _ domain.SubmissionJournal = (*Postgres)(nil)
