package store

import (
	"context"
	"time"

	"depictor/pkg/model"
)

// GroupStore handles question group persistence.
type GroupStore interface {
	// EnsureGroup returns the group for (parent, targetID), creating it if
	// missing. Safe to call concurrently; the UNIQUE constraint arbitrates.
	EnsureGroup(ctx context.Context, parent, name, targetID string) (*model.QuestionGroup, error)
	GetGroup(ctx context.Context, parent, targetID string) (*model.QuestionGroup, error)
}

// QuestionStore handles question persistence.
type QuestionStore interface {
	// CreateQuestion inserts a question. Returns ErrDuplicateQuestion when
	// the (group, unique_id) pair already exists.
	CreateQuestion(ctx context.Context, q *model.Question) error
	GetQuestion(ctx context.Context, id int64) (*model.Question, error)
	// HasQuestion reports whether uniqueID exists in any of the groups.
	HasQuestion(ctx context.Context, groupIDs []int64, uniqueID string) (bool, error)
	// CountUnanswered sums questions without any answer across the groups.
	CountUnanswered(ctx context.Context, groupIDs []int64) (int, error)
	// SetRefineOldDepicts attaches the superseded statement identity to an
	// existing refine question.
	SetRefineOldDepicts(ctx context.Context, questionID int64, oldID, oldName string) error
}

// AnswerStore handles answer persistence.
type AnswerStore interface {
	// CreateAnswer inserts an answer. Returns ErrDuplicateAnswer when the
	// (question, user) pair already exists.
	CreateAnswer(ctx context.Context, a *model.Answer) error
	GetAnswer(ctx context.Context, id int64) (*model.Answer, error)
}

// EditStore handles the append-only edit audit log.
type EditStore interface {
	CreateEdit(ctx context.Context, e *model.Edit) error
	EditsForQuestion(ctx context.Context, questionID int64) ([]model.Edit, error)
}

// CredentialStore handles per-user OAuth tokens.
type CredentialStore interface {
	// GetCredential returns (nil, nil) for a logged-out user.
	GetCredential(ctx context.Context, userID int64) (*model.Credential, error)
	SaveCredential(ctx context.Context, c *model.Credential) error
	DeleteCredential(ctx context.Context, userID int64) error
}

// CacheStore handles generic key-value caching with read-time expiry.
type CacheStore interface {
	GetCache(ctx context.Context, key string, maxAge time.Duration) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// Store composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	GroupStore
	QuestionStore
	AnswerStore
	EditStore
	CredentialStore
	CacheStore

	// Close closes the store connection.
	Close() error
}
