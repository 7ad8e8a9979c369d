package store

import "errors"

var (
	// ErrDuplicateQuestion indicates the (group, unique_id) pair already exists.
	ErrDuplicateQuestion = errors.New("duplicate question")
	// ErrDuplicateAnswer indicates the (question, user) pair already exists.
	ErrDuplicateAnswer = errors.New("duplicate answer")
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)
