package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"depictor/pkg/db"
	"depictor/pkg/model"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// --- Groups ---

func (s *SQLiteStore) EnsureGroup(ctx context.Context, parent, name, targetID string) (*model.QuestionGroup, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO question_groups (parent, name, target_id) VALUES (?, ?, ?)
		 ON CONFLICT(parent, target_id) DO NOTHING`,
		parent, name, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure group: %w", err)
	}
	return s.GetGroup(ctx, parent, targetID)
}

func (s *SQLiteStore) GetGroup(ctx context.Context, parent, targetID string) (*model.QuestionGroup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, parent, name, target_id, created_at FROM question_groups
		 WHERE parent = ? AND target_id = ?`, parent, targetID)

	var g model.QuestionGroup
	err := row.Scan(&g.ID, &g.Parent, &g.Name, &g.TargetID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// --- Questions ---

func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *model.Question) error {
	props, err := q.Payload.Encode()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO questions (group_id, unique_id, properties, manual, category)
		 VALUES (?, ?, ?, ?, ?)`,
		q.GroupID, q.UniqueID, props, q.Manual, q.Category)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateQuestion
		}
		return fmt.Errorf("failed to create question: %w", err)
	}

	q.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (*model.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, unique_id, properties, manual, category, created_at
		 FROM questions WHERE id = ?`, id)

	var q model.Question
	var props string
	var category sql.NullString
	err := row.Scan(&q.ID, &q.GroupID, &q.UniqueID, &props, &q.Manual, &category, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if category.Valid {
		q.Category = category.String
	}

	q.Payload, err = model.DecodePayload(props)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *SQLiteStore) HasQuestion(ctx context.Context, groupIDs []int64, uniqueID string) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}

	query := `SELECT COUNT(*) FROM questions WHERE unique_id = ? AND group_id IN (` + placeholders(len(groupIDs)) + `)`
	args := make([]any, 0, len(groupIDs)+1)
	args = append(args, uniqueID)
	for _, id := range groupIDs {
		args = append(args, id)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountUnanswered(ctx context.Context, groupIDs []int64) (int, error) {
	if len(groupIDs) == 0 {
		return 0, nil
	}

	query := `SELECT COUNT(*) FROM questions q
		 WHERE q.group_id IN (` + placeholders(len(groupIDs)) + `)
		 AND NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = q.id)`
	args := make([]any, 0, len(groupIDs))
	for _, id := range groupIDs {
		args = append(args, id)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) SetRefineOldDepicts(ctx context.Context, questionID int64, oldID, oldName string) error {
	q, err := s.GetQuestion(ctx, questionID)
	if err != nil {
		return err
	}

	q.Payload.OldDepictsID = oldID
	q.Payload.OldDepictsName = oldName
	props, err := q.Payload.Encode()
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE questions SET properties = ? WHERE id = ?`, props, questionID)
	return err
}

// --- Answers ---

func (s *SQLiteStore) CreateAnswer(ctx context.Context, a *model.Answer) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (question_id, user_id, value) VALUES (?, ?, ?)`,
		a.QuestionID, a.UserID, string(a.Value))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAnswer
		}
		return fmt.Errorf("failed to create answer: %w", err)
	}

	a.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) GetAnswer(ctx context.Context, id int64) (*model.Answer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, question_id, user_id, value, created_at FROM answers WHERE id = ?`, id)

	var a model.Answer
	var value string
	err := row.Scan(&a.ID, &a.QuestionID, &a.UserID, &value, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Value = model.AnswerValue(value)
	return &a, nil
}

// --- Edits ---

func (s *SQLiteStore) CreateEdit(ctx context.Context, e *model.Edit) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO edits (question_id, user_id, revision_id, summary) VALUES (?, ?, ?, ?)`,
		e.QuestionID, e.UserID, e.RevisionID, e.Summary)
	if err != nil {
		return fmt.Errorf("failed to create edit: %w", err)
	}

	e.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) EditsForQuestion(ctx context.Context, questionID int64) ([]model.Edit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, user_id, revision_id, summary, created_at
		 FROM edits WHERE question_id = ? ORDER BY id`, questionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []model.Edit
	for rows.Next() {
		var e model.Edit
		var summary sql.NullString
		if err := rows.Scan(&e.ID, &e.QuestionID, &e.UserID, &e.RevisionID, &summary, &e.CreatedAt); err != nil {
			return nil, err
		}
		if summary.Valid {
			e.Summary = summary.String
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// --- Credentials ---

func (s *SQLiteStore) GetCredential(ctx context.Context, userID int64) (*model.Credential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, token, secret FROM credentials WHERE user_id = ?`, userID)

	var c model.Credential
	err := row.Scan(&c.UserID, &c.Token, &c.Secret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Logged out, not an error
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) SaveCredential(ctx context.Context, c *model.Credential) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, token, secret) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET token = excluded.token, secret = excluded.secret`,
		c.UserID, c.Token, c.Secret)
	return err
}

func (s *SQLiteStore) DeleteCredential(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID)
	return err
}

// --- Cache ---

func (s *SQLiteStore) GetCache(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool) {
	var val []byte
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		"SELECT value, created_at FROM cache WHERE key = ?", key).Scan(&val, &createdAt)
	if err != nil {
		// Treat any error as a miss; the cache is best-effort
		return nil, false
	}

	if maxAge > 0 && time.Since(createdAt) > maxAge {
		return nil, false
	}
	return val, true
}

func (s *SQLiteStore) SetCache(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, created_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = CURRENT_TIMESTAMP`,
		key, val)
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
