package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soaringjerry/dyad/internal/services"
)

// SQLiteDSN builds a go-sqlite3 DSN for path. Write transactions take the
// database lock on BEGIN so conditional updates never interleave.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
}

// OpenSQLite opens path with SQLiteDSN and returns a ready store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewSQLiteStore(conn)
}

type SQLiteStore struct {
	db *sql.DB
}

var _ services.Store = (*SQLiteStore)(nil)

func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for migrations.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) logErr(prefix string, err error) {
	if err != nil {
		slog.Warn("sqlite store", "op", prefix, "error", err)
	}
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func boolToInt64(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		s.logErr("rollback", ignoreTxDone(tx.Rollback()))
		return err
	}
	return tx.Commit()
}

func ignoreTxDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// --- sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *services.Session, ps []*services.Participant) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			sess.ID, string(sess.Status), formatTime(sess.CreatedAt), formatTime(sess.UpdatedAt),
		); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		for _, p := range ps {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO participants (id, session_id, role, token, display_name, completed_at, created_at)
				 VALUES (?, ?, ?, ?, ?, NULL, ?)`,
				p.ID, sess.ID, string(p.Role), p.Token, nullString(p.DisplayName), formatTime(sess.CreatedAt),
			); err != nil {
				return fmt.Errorf("insert participant %s: %w", p.Role, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*services.Session, error) {
	var (
		out                  services.Session
		status               string
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&out.ID, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out.Status = services.SessionStatus(status)
	out.CreatedAt = parseTime(createdAt)
	out.UpdatedAt = parseTime(updatedAt)
	return &out, nil
}

const participantColumns = `id, session_id, role, token, display_name, completed_at`

func scanParticipant(row interface{ Scan(...any) error }) (*services.Participant, error) {
	var (
		p           services.Participant
		role        string
		displayName sql.NullString
		completedAt sql.NullString
	)
	if err := row.Scan(&p.ID, &p.SessionID, &role, &p.Token, &displayName, &completedAt); err != nil {
		return nil, err
	}
	p.Role = services.Role(role)
	if displayName.Valid {
		v := displayName.String
		p.DisplayName = &v
	}
	p.CompletedAt = parseNullTime(completedAt)
	return &p, nil
}

func (s *SQLiteStore) GetParticipantByToken(ctx context.Context, token string) (*services.Participant, error) {
	p, err := scanParticipant(s.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (s *SQLiteStore) ListParticipants(ctx context.Context, sessionID string) ([]*services.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE session_id = ? ORDER BY role`, sessionID)
	if err != nil {
		return nil, err
	}
	defer func() { s.logErr("close participants rows", rows.Close()) }()
	var out []*services.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- questions ---

func (s *SQLiteStore) listQuestions(ctx context.Context, activeOnly bool) ([]*services.Question, error) {
	query := `SELECT id, dimension, prompt, sort_order, is_active FROM questions`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order, id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { s.logErr("close questions rows", rows.Close()) }()
	var out []*services.Question
	for rows.Next() {
		var (
			q      services.Question
			active int64
		)
		if err := rows.Scan(&q.ID, &q.Dimension, &q.Prompt, &q.SortOrder, &active); err != nil {
			return nil, err
		}
		q.IsActive = active != 0
		out = append(out, &q)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListActiveQuestions(ctx context.Context) ([]*services.Question, error) {
	return s.listQuestions(ctx, true)
}

func (s *SQLiteStore) ListQuestions(ctx context.Context) ([]*services.Question, error) {
	return s.listQuestions(ctx, false)
}

func (s *SQLiteStore) ListChoices(ctx context.Context, questionIDs []string) ([]*services.Choice, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(questionIDs))
	for i, id := range questionIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, label, value, sort_order FROM choices
		 WHERE question_id IN (`+placeholders(len(questionIDs))+`)
		 ORDER BY question_id, sort_order, value`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { s.logErr("close choices rows", rows.Close()) }()
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

func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *services.Question, choices []*services.Choice) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO questions (id, dimension, prompt, sort_order, is_active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			q.ID, q.Dimension, q.Prompt, q.SortOrder, boolToInt64(q.IsActive), formatTime(time.Now()),
		); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		for _, c := range choices {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO choices (id, question_id, label, value, sort_order) VALUES (?, ?, ?, ?, ?)`,
				c.ID, q.ID, c.Label, c.Value, c.SortOrder,
			); err != nil {
				return fmt.Errorf("insert choice: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SetQuestionActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE questions SET is_active = ? WHERE id = ?`, boolToInt64(active), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrNotFound
	}
	return nil
}

// --- progress ---

const (
	upsertResponseSQL = `INSERT INTO responses (participant_id, question_id, session_id, choice_value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(participant_id, question_id) DO UPDATE SET
			choice_value = excluded.choice_value,
			updated_at = excluded.updated_at`
	upsertFreeTextSQL = `INSERT INTO free_texts (participant_id, session_id, text, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(participant_id) DO UPDATE SET
			text = excluded.text,
			updated_at = excluded.updated_at`
)

func (s *SQLiteStore) SaveProgress(ctx context.Context, w services.ProgressWrite) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var completedAt sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT completed_at FROM participants WHERE id = ?`, w.ParticipantID).Scan(&completedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return services.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load participant: %w", err)
		}
		if completedAt.Valid {
			return services.ErrParticipantCompleted
		}
		at := formatTime(w.At)
		if len(w.Answers) > 0 {
			stmt, err := tx.PrepareContext(ctx, upsertResponseSQL)
			if err != nil {
				return fmt.Errorf("prepare response upsert: %w", err)
			}
			defer func() { s.logErr("close response stmt", stmt.Close()) }()
			for _, a := range w.Answers {
				if _, err := stmt.ExecContext(ctx, w.ParticipantID, a.QuestionID, w.SessionID, a.ChoiceValue, at); err != nil {
					return fmt.Errorf("upsert response %s: %w", a.QuestionID, err)
				}
			}
		}
		if w.FreeText != nil {
			if _, err := tx.ExecContext(ctx, upsertFreeTextSQL, w.ParticipantID, w.SessionID, *w.FreeText, at); err != nil {
				return fmt.Errorf("upsert free text: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) queryResponses(ctx context.Context, where string, arg string) ([]*services.Response, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant_id, question_id, session_id, choice_value, updated_at FROM responses
		 WHERE `+where+` = ? ORDER BY participant_id, question_id`, arg)
	if err != nil {
		return nil, err
	}
	defer func() { s.logErr("close responses rows", rows.Close()) }()
	var out []*services.Response
	for rows.Next() {
		var (
			r         services.Response
			updatedAt string
		)
		if err := rows.Scan(&r.ParticipantID, &r.QuestionID, &r.SessionID, &r.ChoiceValue, &updatedAt); err != nil {
			return nil, err
		}
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListResponses(ctx context.Context, participantID string) ([]*services.Response, error) {
	return s.queryResponses(ctx, "participant_id", participantID)
}

func (s *SQLiteStore) ListSessionResponses(ctx context.Context, sessionID string) ([]*services.Response, error) {
	return s.queryResponses(ctx, "session_id", sessionID)
}

func (s *SQLiteStore) GetFreeText(ctx context.Context, participantID string) (*services.FreeText, error) {
	var (
		ft        services.FreeText
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT participant_id, session_id, text, updated_at FROM free_texts WHERE participant_id = ?`, participantID,
	).Scan(&ft.ParticipantID, &ft.SessionID, &ft.Text, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ft.UpdatedAt = parseTime(updatedAt)
	return &ft, nil
}

// --- completion ---

func (s *SQLiteStore) CountActiveQuestions(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE is_active = 1`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) CountResponses(ctx context.Context, participantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE participant_id = ?`, participantID).Scan(&n)
	return n, err
}

// MarkCompleted runs in an immediate transaction, so the open check, the
// free text write and the completion commit together.
func (s *SQLiteStore) MarkCompleted(ctx context.Context, w services.CompletionWrite) (bool, error) {
	changed := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		at := formatTime(w.At)
		if w.FreeText != nil {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO free_texts (participant_id, session_id, text, updated_at)
				 SELECT id, session_id, ?, ? FROM participants WHERE id = ? AND completed_at IS NULL
				 ON CONFLICT(participant_id) DO UPDATE SET
					text = excluded.text,
					updated_at = excluded.updated_at`,
				*w.FreeText, at, w.ParticipantID)
			if err != nil {
				return fmt.Errorf("%w: %w", services.ErrFreeTextWrite, err)
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				// Already completed (or unknown): write nothing.
				return err
			}
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE participants SET completed_at = ? WHERE id = ? AND completed_at IS NULL`,
			at, w.ParticipantID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status services.SessionStatus, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ?
		 WHERE id = ? AND (status <> 'ready' OR ? = 'ready')`,
		string(status), formatTime(at), sessionID, string(status))
	return err
}

// --- report runs ---

func (s *SQLiteStore) CreateReportRun(ctx context.Context, run *services.ReportRun) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO report_runs (id, session_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		run.ID, run.SessionID, formatTime(run.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) GetReportRun(ctx context.Context, sessionID string) (*services.ReportRun, error) {
	var (
		run       services.ReportRun
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, created_at FROM report_runs WHERE session_id = ?`, sessionID,
	).Scan(&run.ID, &run.SessionID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.CreatedAt = parseTime(createdAt)
	return &run, nil
}

func (s *SQLiteStore) ListCompletedSessionsWithoutRun(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id FROM sessions s
		WHERE NOT EXISTS (SELECT 1 FROM report_runs r WHERE r.session_id = s.id)
		  AND EXISTS (SELECT 1 FROM participants p WHERE p.session_id = s.id)
		  AND NOT EXISTS (SELECT 1 FROM participants p WHERE p.session_id = s.id AND p.completed_at IS NULL)
		ORDER BY s.updated_at, s.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { s.logErr("close backfill rows", rows.Close()) }()
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
