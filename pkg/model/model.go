package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Rank is the prominence rank of a statement.
type Rank string

const (
	RankNormal     Rank = "normal"
	RankPreferred  Rank = "preferred"
	RankDeprecated Rank = "deprecated"
)

// Statement is a single claim on an entity, as returned by the wiki API.
// Value is the target entity ID for value snaks and empty for
// novalue/somevalue snaks.
type Statement struct {
	ID       string `json:"id"` // Statement GUID, e.g. "M123$ab12..."
	Property string `json:"property"`
	Value    string `json:"value"`
	Rank     Rank   `json:"rank"`
}

// HasValue reports whether the statement carries a concrete entity value.
func (s Statement) HasValue() bool {
	return s.Value != ""
}

// QuestionGroup is a bucket of questions for one target entity.
// Parent is "depicts" for direct-add groups and "depicts-refine" for
// refinement groups.
type QuestionGroup struct {
	ID        int64     `json:"id"`
	Parent    string    `json:"parent"`
	Name      string    `json:"name"`
	TargetID  string    `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionPayload is the property bag attached to a question.
// A payload with OldDepictsID set describes a refinement (replace the
// broader statement); otherwise it describes a direct add.
type QuestionPayload struct {
	MediaInfoID    string `json:"mediainfo_id"`
	DepictsID      string `json:"depicts_id"`
	DepictsName    string `json:"depicts_name"`
	ImgURL         string `json:"img_url,omitempty"`
	OldDepictsID   string `json:"old_depicts_id,omitempty"`
	OldDepictsName string `json:"old_depicts_name,omitempty"`
}

// IsRefine reports whether the payload describes a refinement question.
func (p QuestionPayload) IsRefine() bool {
	return p.OldDepictsID != ""
}

// Encode serializes the payload for the properties column.
func (p QuestionPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload parses a properties column value.
func DecodePayload(s string) (QuestionPayload, error) {
	var p QuestionPayload
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return QuestionPayload{}, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}

// Question is a single review question.
// UniqueID is unique within the group and is the sole duplicate-prevention
// mechanism across repeated generator runs.
type Question struct {
	ID        int64           `json:"id"`
	GroupID   int64           `json:"group_id"`
	UniqueID  string          `json:"unique_id"`
	Payload   QuestionPayload `json:"payload"`
	Manual    bool            `json:"manual"`
	Category  string          `json:"category"` // Provenance for manual runs
	CreatedAt time.Time       `json:"created_at"`
}

// AnswerValue is a reviewer's verdict.
type AnswerValue string

const (
	AnswerYes          AnswerValue = "yes"
	AnswerNo           AnswerValue = "no"
	AnswerSkip         AnswerValue = "skip"
	AnswerYesPreferred AnswerValue = "yes-preferred"
)

// IsPositive reports whether the answer confirms the fact.
func (v AnswerValue) IsPositive() bool {
	return v == AnswerYes || v == AnswerYesPreferred
}

// Answer is one reviewer's verdict on one question. At most one exists
// per (question, user); immutable once created.
type Answer struct {
	ID         int64       `json:"id"`
	QuestionID int64       `json:"question_id"`
	UserID     int64       `json:"user_id"`
	Value      AnswerValue `json:"value"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Edit is an append-only audit record linking a question to an external
// revision. Swap resolutions produce two rows (removal + addition).
type Edit struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	UserID     int64     `json:"user_id"`
	RevisionID int64     `json:"revision_id"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

// Credential holds a user's stored OAuth token pair. A user without a
// row is logged out and cannot perform writes.
type Credential struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
	Secret string `json:"secret"`
}

// PageInfo describes one member of a category listing.
type PageInfo struct {
	PageID    int64  `json:"pageid"`
	Namespace int    `json:"ns"`
	Title     string `json:"title"`
}

// MediaInfoID returns the MediaInfo entity ID for a file page.
func (p PageInfo) MediaInfoID() string {
	return fmt.Sprintf("M%d", p.PageID)
}
