package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/soaringjerry/dyad/internal/services"
)

// ConnectPostgres creates a pgx pool for dsn and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 8
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = 60 * time.Minute
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ services.Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *services.Session, ps []*services.Participant) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO sessions (id, status, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
			sess.ID, string(sess.Status), sess.CreatedAt, sess.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		batch := &pgx.Batch{}
		for _, p := range ps {
			batch.Queue(
				`INSERT INTO participants (id, session_id, role, token, display_name, completed_at, created_at)
				 VALUES ($1, $2, $3, $4, $5, NULL, $6)`,
				p.ID, sess.ID, string(p.Role), p.Token, p.DisplayName, sess.CreatedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert participants: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*services.Session, error) {
	var (
		out    services.Session
		status string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, created_at, updated_at FROM sessions WHERE id = $1`, id,
	).Scan(&out.ID, &status, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Status = services.SessionStatus(status)
	return &out, nil
}

func scanPgParticipant(row pgx.Row) (*services.Participant, error) {
	var (
		p    services.Participant
		role string
	)
	if err := row.Scan(&p.ID, &p.SessionID, &role, &p.Token, &p.DisplayName, &p.CompletedAt); err != nil {
		return nil, err
	}
	p.Role = services.Role(role)
	return &p, nil
}

func (s *PostgresStore) GetParticipantByToken(ctx context.Context, token string) (*services.Participant, error) {
	p, err := scanPgParticipant(s.pool.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *PostgresStore) ListParticipants(ctx context.Context, sessionID string) ([]*services.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = $1 ORDER BY role`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Participant
	for rows.Next() {
		p, err := scanPgParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- questions ---

func (s *PostgresStore) listQuestions(ctx context.Context, activeOnly bool) ([]*services.Question, error) {
	query := `SELECT id, dimension, prompt, sort_order, is_active FROM questions`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY sort_order, id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Question
	for rows.Next() {
		var q services.Question
		if err := rows.Scan(&q.ID, &q.Dimension, &q.Prompt, &q.SortOrder, &q.IsActive); err != nil {
			return nil, err
		}
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListActiveQuestions(ctx context.Context) ([]*services.Question, error) {
	return s.listQuestions(ctx, true)
}

func (s *PostgresStore) ListQuestions(ctx context.Context) ([]*services.Question, error) {
	return s.listQuestions(ctx, false)
}

func (s *PostgresStore) ListChoices(ctx context.Context, questionIDs []string) ([]*services.Choice, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, question_id, label, value, sort_order FROM choices
		 WHERE question_id = ANY($1)
		 ORDER BY question_id, sort_order, value`, questionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Choice
	for rows.Next() {
		var c services.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Label, &c.Value, &c.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *services.Question, choices []*services.Choice) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO questions (id, dimension, prompt, sort_order, is_active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			q.ID, q.Dimension, q.Prompt, q.SortOrder, q.IsActive, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for _, c := range choices {
			if _, err := tx.Exec(ctx,
				`INSERT INTO choices (id, question_id, label, value, sort_order) VALUES ($1, $2, $3, $4, $5)`,
				c.ID, q.ID, c.Label, c.Value, c.SortOrder,
			); err != nil {
				return fmt.Errorf("insert choice: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) SetQuestionActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE questions SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return services.ErrNotFound
	}
	return nil
}

// --- progress ---

const (
	pgUpsertResponseSQL = `INSERT INTO responses (participant_id, question_id, session_id, choice_value, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participant_id, question_id) DO UPDATE SET
			choice_value = EXCLUDED.choice_value,
			updated_at = EXCLUDED.updated_at`
	pgUpsertFreeTextSQL = `INSERT INTO free_texts (participant_id, session_id, text, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (participant_id) DO UPDATE SET
			text = EXCLUDED.text,
			updated_at = EXCLUDED.updated_at`
)

// SaveProgress locks the participant row so a concurrent completion either
// commits before the check or waits until the answers are written.
func (s *PostgresStore) SaveProgress(ctx context.Context, w services.ProgressWrite) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var completedAt *time.Time
		err := tx.QueryRow(ctx,
			`SELECT completed_at FROM participants WHERE id = $1 FOR UPDATE`, w.ParticipantID,
		).Scan(&completedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return services.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock participant: %w", err)
		}
		if completedAt != nil {
			return services.ErrParticipantCompleted
		}
		batch := &pgx.Batch{}
		for _, a := range w.Answers {
			batch.Queue(pgUpsertResponseSQL, w.ParticipantID, a.QuestionID, w.SessionID, a.ChoiceValue, w.At)
		}
		if w.FreeText != nil {
			batch.Queue(pgUpsertFreeTextSQL, w.ParticipantID, w.SessionID, *w.FreeText, w.At)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert progress: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) queryResponses(ctx context.Context, where string, arg string) ([]*services.Response, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT participant_id, question_id, session_id, choice_value, updated_at FROM responses
		 WHERE `+where+` = $1 ORDER BY participant_id, question_id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*services.Response
	for rows.Next() {
		var r services.Response
		if err := rows.Scan(&r.ParticipantID, &r.QuestionID, &r.SessionID, &r.ChoiceValue, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListResponses(ctx context.Context, participantID string) ([]*services.Response, error) {
	return s.queryResponses(ctx, "participant_id", participantID)
}

func (s *PostgresStore) ListSessionResponses(ctx context.Context, sessionID string) ([]*services.Response, error) {
	return s.queryResponses(ctx, "session_id", sessionID)
}

func (s *PostgresStore) GetFreeText(ctx context.Context, participantID string) (*services.FreeText, error) {
	var ft services.FreeText
	err := s.pool.QueryRow(ctx,
		`SELECT participant_id, session_id, text, updated_at FROM free_texts WHERE participant_id = $1`, participantID,
	).Scan(&ft.ParticipantID, &ft.SessionID, &ft.Text, &ft.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

// --- completion ---

func (s *PostgresStore) CountActiveQuestions(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions WHERE is_active`).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountResponses(ctx context.Context, participantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM responses WHERE participant_id = $1`, participantID).Scan(&n)
	return n, err
}

// MarkCompleted locks the participant row, then writes the free text and
// completed_at in the same transaction.
func (s *PostgresStore) MarkCompleted(ctx context.Context, w services.CompletionWrite) (bool, error) {
	changed := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var completedAt *time.Time
		err := tx.QueryRow(ctx,
			`SELECT completed_at FROM participants WHERE id = $1 FOR UPDATE`, w.ParticipantID,
		).Scan(&completedAt)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && completedAt != nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock participant: %w", err)
		}
		if w.FreeText != nil {
			if _, err := tx.Exec(ctx, pgUpsertFreeTextSQL, w.ParticipantID, w.SessionID, *w.FreeText, w.At); err != nil {
				return fmt.Errorf("%w: %w", services.ErrFreeTextWrite, err)
			}
		}
		tag, err := tx.Exec(ctx,
			`UPDATE participants SET completed_at = $1 WHERE id = $2 AND completed_at IS NULL`, w.At, w.ParticipantID)
		if err != nil {
			return err
		}
		changed = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, sessionID string, status services.SessionStatus, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, updated_at = $2
		 WHERE id = $3 AND (status <> 'ready' OR $1 = 'ready')`,
		string(status), at, sessionID)
	return err
}

// --- report runs ---

func (s *PostgresStore) CreateReportRun(ctx context.Context, run *services.ReportRun) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO report_runs (id, session_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO NOTHING`,
		run.ID, run.SessionID, run.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetReportRun(ctx context.Context, sessionID string) (*services.ReportRun, error) {
	var run services.ReportRun
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, created_at FROM report_runs WHERE session_id = $1`, sessionID,
	).Scan(&run.ID, &run.SessionID, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *PostgresStore) ListCompletedSessionsWithoutRun(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id FROM sessions s
		WHERE NOT EXISTS (SELECT 1 FROM report_runs r WHERE r.session_id = s.id)
		  AND EXISTS (SELECT 1 FROM participants p WHERE p.session_id = s.id)
		  AND NOT EXISTS (SELECT 1 FROM participants p WHERE p.session_id = s.id AND p.completed_at IS NULL)
		ORDER BY s.updated_at, s.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
