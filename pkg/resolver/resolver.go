package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"depictor/pkg/depicts"
	"depictor/pkg/model"
	"depictor/pkg/mwapi"
	"depictor/pkg/store"
	"depictor/pkg/taxonomy"
	"depictor/pkg/tracker"
)

// Gateway is the slice of the wiki client the resolver writes through.
type Gateway interface {
	GetStatements(ctx context.Context, entityID, propertyID string) ([]model.Statement, error)
	CreateStatement(ctx context.Context, cred *model.Credential, entityID, propertyID, valueID, summary string) (string, error)
	RemoveStatement(ctx context.Context, cred *model.Credential, statementID, summary string) error
	SetRank(ctx context.Context, cred *model.Credential, statementID string, rank model.Rank, summary string) error
	LatestRevisionID(ctx context.Context, entityID string) (int64, error)
}

// ClosureProvider resolves taxonomy closures for a root entity.
type ClosureProvider interface {
	DescendantsOf(ctx context.Context, rootID string) (taxonomy.Set, error)
	AncestorsOf(ctx context.Context, rootID string) (taxonomy.Set, error)
}

// ResolutionStore is the store access the resolver needs.
type ResolutionStore interface {
	store.QuestionStore
	store.AnswerStore
	store.EditStore
	store.CredentialStore
}

// Engine turns confirmed answers into depicts statement edits. Every
// resolution re-classifies the entity's current statements first, so a
// re-delivered answer or a concurrent external edit degrades to a no-op
// instead of a duplicate write.
type Engine struct {
	store    ResolutionStore
	gateway  Gateway
	closures ClosureProvider
	tracker  *tracker.Tracker
	logger   *slog.Logger
	property string
}

func New(s ResolutionStore, gateway Gateway, closures ClosureProvider, t *tracker.Tracker, property string, logger *slog.Logger) *Engine {
	return &Engine{
		store:    s,
		gateway:  gateway,
		closures: closures,
		tracker:  t,
		logger:   logger,
		property: property,
	}
}

// Resolve processes one answer. Negative and skip answers are terminal
// no-ops. Expected dead ends (logged-out user, stale question state)
// return nil after logging; only infrastructure failures surface as
// errors so the job queue can report them.
func (e *Engine) Resolve(ctx context.Context, answerID int64) error {
	answer, err := e.store.GetAnswer(ctx, answerID)
	if err != nil {
		return fmt.Errorf("failed to load answer %d: %w", answerID, err)
	}
	if !answer.Value.IsPositive() {
		e.logger.Debug("answer needs no edit", "answer", answerID, "value", answer.Value)
		return nil
	}

	question, err := e.store.GetQuestion(ctx, answer.QuestionID)
	if err != nil {
		return fmt.Errorf("failed to load question %d: %w", answer.QuestionID, err)
	}

	// Fast path for re-delivered answers. The re-classification below
	// would catch these too, but without spending wiki traffic.
	edits, err := e.store.EditsForQuestion(ctx, question.ID)
	if err != nil {
		return err
	}
	if len(edits) > 0 {
		e.logger.Info("question already edited, skipping", "question", question.ID, "edits", len(edits))
		return nil
	}

	cred, err := e.store.GetCredential(ctx, answer.UserID)
	if err != nil {
		return err
	}
	if cred == nil {
		e.logger.Warn("user has no credential, resolution aborted",
			"answer", answerID, "user", answer.UserID)
		e.tracker.TrackResolutionBailed()
		return nil
	}

	entityID := question.Payload.MediaInfoID
	targetID := question.Payload.DepictsID

	statements, err := e.gateway.GetStatements(ctx, entityID, e.property)
	if err != nil {
		if errors.Is(err, mwapi.ErrEntityNotFound) {
			e.logger.Warn("entity vanished, resolution aborted", "entity", entityID, "question", question.ID)
			e.tracker.TrackResolutionBailed()
			return nil
		}
		return err
	}

	descendants, err := e.closures.DescendantsOf(ctx, targetID)
	if err != nil {
		return err
	}
	ancestors, err := e.closures.AncestorsOf(ctx, targetID)
	if err != nil {
		return err
	}

	res := depicts.Classify(statements, targetID, descendants, ancestors)
	if res.State.Satisfied() {
		e.logger.Info("target already covered, no edit needed",
			"entity", entityID, "target", targetID, "state", res.State.String())
		return nil
	}

	if question.Payload.IsRefine() {
		return e.swapDepicts(ctx, cred, question, answer, statements, res)
	}
	return e.addDepicts(ctx, cred, question, answer)
}

// addDepicts creates the target statement and, for a yes-preferred
// answer, promotes its rank in a second write.
func (e *Engine) addDepicts(ctx context.Context, cred *model.Credential, question *model.Question, answer *model.Answer) error {
	entityID := question.Payload.MediaInfoID
	summary := e.summary(question, "adding depicts statement")

	guid, err := e.gateway.CreateStatement(ctx, cred, entityID, e.property, question.Payload.DepictsID, summary)
	if err != nil {
		return fmt.Errorf("failed to create statement on %s: %w", entityID, err)
	}
	if err := e.recordEdit(ctx, question, answer, entityID, summary); err != nil {
		return err
	}

	if answer.Value == model.AnswerYesPreferred {
		if err := e.promoteRank(ctx, cred, question, answer, guid, "adding depicts statement"); err != nil {
			return err
		}
	}
	return nil
}

// swapDepicts replaces the recorded broader statement with the target.
// The removal and the creation are separate wiki writes with no
// transaction around them; a failure in between is reported, not rolled
// back.
func (e *Engine) swapDepicts(ctx context.Context, cred *model.Credential, question *model.Question, answer *model.Answer, statements []model.Statement, res depicts.Result) error {
	entityID := question.Payload.MediaInfoID
	oldID := question.Payload.OldDepictsID

	if res.Ambiguous {
		e.logger.Warn("BAIL: multiple broader statements, refusing to swap",
			"entity", entityID, "question", question.ID, "less_specific", res.LessSpecificCount)
		e.tracker.TrackResolutionBailed()
		return nil
	}

	count, match := depicts.CountExact(statements, oldID)
	if count != 1 {
		e.logger.Warn("BAIL: recorded statement not found exactly once",
			"entity", entityID, "question", question.ID, "old", oldID, "count", count)
		e.tracker.TrackResolutionBailed()
		return nil
	}

	summary := e.summary(question, "changing depicts statement")

	if err := e.gateway.RemoveStatement(ctx, cred, match.ID, summary); err != nil {
		return fmt.Errorf("failed to remove statement %s: %w", match.ID, err)
	}
	if err := e.recordEdit(ctx, question, answer, entityID, summary); err != nil {
		return err
	}

	guid, err := e.gateway.CreateStatement(ctx, cred, entityID, e.property, question.Payload.DepictsID, summary)
	if err != nil {
		// The old statement is already gone; the entity now carries
		// neither value until someone follows up.
		return fmt.Errorf("partial swap on %s, removal committed but creation failed: %w", entityID, err)
	}
	if err := e.recordEdit(ctx, question, answer, entityID, summary); err != nil {
		return err
	}

	if answer.Value == model.AnswerYesPreferred {
		if err := e.promoteRank(ctx, cred, question, answer, guid, "changing depicts statement"); err != nil {
			return err
		}
	}
	return nil
}

// promoteRank sets preferred rank on a freshly created statement and
// records the extra revision.
func (e *Engine) promoteRank(ctx context.Context, cred *model.Credential, question *model.Question, answer *model.Answer, guid, base string) error {
	summary := "(set preferred rank) " + e.summary(question, base)
	if err := e.gateway.SetRank(ctx, cred, guid, model.RankPreferred, summary); err != nil {
		return fmt.Errorf("failed to set preferred rank on %s: %w", guid, err)
	}
	return e.recordEdit(ctx, question, answer, question.Payload.MediaInfoID, summary)
}

// recordEdit writes one audit row for the entity's latest revision.
func (e *Engine) recordEdit(ctx context.Context, question *model.Question, answer *model.Answer, entityID, summary string) error {
	rev, err := e.gateway.LatestRevisionID(ctx, entityID)
	if err != nil {
		return fmt.Errorf("edit committed but revision lookup failed on %s: %w", entityID, err)
	}
	edit := &model.Edit{
		QuestionID: question.ID,
		UserID:     answer.UserID,
		RevisionID: rev,
		Summary:    summary,
	}
	if err := e.store.CreateEdit(ctx, edit); err != nil {
		return err
	}
	e.tracker.TrackEditApplied()
	e.logger.Info("edit recorded", "question", question.ID, "revision", rev, "summary", summary)
	return nil
}

// summary builds the edit summary, marking manually triggered questions
// with their provenance.
func (e *Engine) summary(question *model.Question, base string) string {
	if question.Manual && question.Category != "" {
		return fmt.Sprintf("(manual category %s/%s) %s", question.Category, question.Payload.DepictsID, base)
	}
	return base
}
