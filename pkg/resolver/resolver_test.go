package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depictor/pkg/db"
	"depictor/pkg/model"
	"depictor/pkg/mwapi"
	"depictor/pkg/store"
	"depictor/pkg/taxonomy"
	"depictor/pkg/tracker"
)

// fakeGateway mimics the wiki: statements mutate under writes and every
// write bumps the revision counter.
type fakeGateway struct {
	statements []model.Statement
	revision   int64
	nextGUID   int

	creates int
	removes int
	ranks   int

	entityMissing bool
}

func (f *fakeGateway) GetStatements(ctx context.Context, entityID, propertyID string) ([]model.Statement, error) {
	if f.entityMissing {
		return nil, fmt.Errorf("%w: %s", mwapi.ErrEntityNotFound, entityID)
	}
	out := make([]model.Statement, len(f.statements))
	copy(out, f.statements)
	return out, nil
}

func (f *fakeGateway) CreateStatement(ctx context.Context, cred *model.Credential, entityID, propertyID, valueID, summary string) (string, error) {
	if cred == nil {
		return "", mwapi.ErrNoCredential
	}
	f.creates++
	f.revision++
	f.nextGUID++
	guid := fmt.Sprintf("%s$fake-%d", entityID, f.nextGUID)
	f.statements = append(f.statements, model.Statement{
		ID: guid, Property: propertyID, Value: valueID, Rank: model.RankNormal,
	})
	return guid, nil
}

func (f *fakeGateway) RemoveStatement(ctx context.Context, cred *model.Credential, statementID, summary string) error {
	if cred == nil {
		return mwapi.ErrNoCredential
	}
	for i, s := range f.statements {
		if s.ID == statementID {
			f.statements = append(f.statements[:i], f.statements[i+1:]...)
			f.removes++
			f.revision++
			return nil
		}
	}
	return mwapi.ErrStatementNotFound
}

func (f *fakeGateway) SetRank(ctx context.Context, cred *model.Credential, statementID string, rank model.Rank, summary string) error {
	if cred == nil {
		return mwapi.ErrNoCredential
	}
	for i, s := range f.statements {
		if s.ID == statementID {
			f.statements[i].Rank = rank
			f.ranks++
			f.revision++
			return nil
		}
	}
	return mwapi.ErrStatementNotFound
}

func (f *fakeGateway) LatestRevisionID(ctx context.Context, entityID string) (int64, error) {
	return f.revision, nil
}

type fakeClosures struct {
	descendants taxonomy.Set
	ancestors   taxonomy.Set
}

func (f fakeClosures) DescendantsOf(ctx context.Context, rootID string) (taxonomy.Set, error) {
	return f.descendants, nil
}

func (f fakeClosures) AncestorsOf(ctx context.Context, rootID string) (taxonomy.Set, error) {
	return f.ancestors, nil
}

type fixture struct {
	store   *store.SQLiteStore
	gateway *fakeGateway
	engine  *Engine
}

func newFixture(t *testing.T, gw *fakeGateway) *fixture {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "resolver_test.db"))
	require.NoError(t, err)
	s := store.NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })

	closures := fakeClosures{
		descendants: taxonomy.Set{"Q200": {}},
		ancestors:   taxonomy.Set{"Q50": {}, "Q60": {}},
	}
	engine := New(s, gw, closures, tracker.New(), "P180", slog.Default())
	return &fixture{store: s, gateway: gw, engine: engine}
}

// seed creates a group, question, answer, and credential; returns the
// answer ID.
func (fx *fixture) seed(t *testing.T, payload model.QuestionPayload, value model.AnswerValue, withCred bool) int64 {
	t.Helper()
	ctx := context.Background()

	parent := "depicts"
	if payload.IsRefine() {
		parent = "depicts-refine"
	}
	group, err := fx.store.EnsureGroup(ctx, parent, payload.DepictsName, payload.DepictsID)
	require.NoError(t, err)

	q := &model.Question{
		GroupID:  group.ID,
		UniqueID: payload.MediaInfoID + "_" + payload.DepictsID,
		Payload:  payload,
	}
	require.NoError(t, fx.store.CreateQuestion(ctx, q))

	a := &model.Answer{QuestionID: q.ID, UserID: 7, Value: value}
	require.NoError(t, fx.store.CreateAnswer(ctx, a))

	if withCred {
		require.NoError(t, fx.store.SaveCredential(ctx, &model.Credential{
			UserID: 7, Token: "tok", Secret: "sec",
		}))
	}
	return a.ID
}

func directPayload() model.QuestionPayload {
	return model.QuestionPayload{
		MediaInfoID: "M1",
		DepictsID:   "Q100",
		DepictsName: "dog",
		ImgURL:      "https://upload.example/dog.jpg",
	}
}

func refinePayload() model.QuestionPayload {
	p := directPayload()
	p.OldDepictsID = "Q50"
	p.OldDepictsName = "animal"
	return p
}

func questionEdits(t *testing.T, fx *fixture, answerID int64) []model.Edit {
	t.Helper()
	ctx := context.Background()
	a, err := fx.store.GetAnswer(ctx, answerID)
	require.NoError(t, err)
	edits, err := fx.store.EditsForQuestion(ctx, a.QuestionID)
	require.NoError(t, err)
	return edits
}

func TestResolveAddDepicts(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 1, gw.creates)
	assert.Equal(t, 0, gw.removes)
	assert.Equal(t, "Q100", gw.statements[0].Value)

	edits := questionEdits(t, fx, answerID)
	require.Len(t, edits, 1)
	assert.Equal(t, "adding depicts statement", edits[0].Summary)
	assert.Equal(t, gw.revision, edits[0].RevisionID)
}

func TestResolveRedeliveredAnswerNoOps(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))
	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 1, gw.creates, "second delivery must not write")
	assert.Len(t, questionEdits(t, fx, answerID), 1)
}

func TestResolveAlreadySatisfiedNoOps(t *testing.T) {
	gw := &fakeGateway{statements: []model.Statement{
		{ID: "M1$x", Property: "P180", Value: "Q100", Rank: model.RankNormal},
	}}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 0, gw.creates)
	assert.Empty(t, questionEdits(t, fx, answerID))
}

func TestResolveNegativeAnswerIsTerminal(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerNo, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))
	assert.Equal(t, 0, gw.creates)
}

func TestResolveWithoutCredentialAborts(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerYes, false)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 0, gw.creates)
	assert.Empty(t, questionEdits(t, fx, answerID))
}

func TestResolveEntityVanishedAborts(t *testing.T) {
	gw := &fakeGateway{entityMissing: true}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))
	assert.Equal(t, 0, gw.creates)
}

func TestResolvePreferredRank(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, directPayload(), model.AnswerYesPreferred, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 1, gw.creates)
	assert.Equal(t, 1, gw.ranks)
	assert.Equal(t, model.RankPreferred, gw.statements[0].Rank)

	edits := questionEdits(t, fx, answerID)
	require.Len(t, edits, 2)
	assert.Equal(t, "adding depicts statement", edits[0].Summary)
	assert.Equal(t, "(set preferred rank) adding depicts statement", edits[1].Summary)
	assert.NotEqual(t, edits[0].RevisionID, edits[1].RevisionID)
}

func TestResolveSwapDepicts(t *testing.T) {
	gw := &fakeGateway{statements: []model.Statement{
		{ID: "M1$old", Property: "P180", Value: "Q50", Rank: model.RankNormal},
	}}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, refinePayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 1, gw.removes)
	assert.Equal(t, 1, gw.creates)
	require.Len(t, gw.statements, 1)
	assert.Equal(t, "Q100", gw.statements[0].Value)

	edits := questionEdits(t, fx, answerID)
	require.Len(t, edits, 2)
	assert.Equal(t, "changing depicts statement", edits[0].Summary)
	assert.Equal(t, "changing depicts statement", edits[1].Summary)
	assert.NotEqual(t, edits[0].RevisionID, edits[1].RevisionID)
}

func TestResolveSwapBailsWhenOldStatementGone(t *testing.T) {
	// The recorded broader statement was removed externally between
	// question generation and answer resolution.
	gw := &fakeGateway{statements: []model.Statement{
		{ID: "M1$other", Property: "P180", Value: "Q999", Rank: model.RankNormal},
	}}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, refinePayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 0, gw.removes)
	assert.Equal(t, 0, gw.creates)
	assert.Empty(t, questionEdits(t, fx, answerID))
}

func TestResolveSwapBailsOnAmbiguity(t *testing.T) {
	gw := &fakeGateway{statements: []model.Statement{
		{ID: "M1$a", Property: "P180", Value: "Q50", Rank: model.RankNormal},
		{ID: "M1$b", Property: "P180", Value: "Q60", Rank: model.RankNormal},
	}}
	fx := newFixture(t, gw)
	answerID := fx.seed(t, refinePayload(), model.AnswerYes, true)

	require.NoError(t, fx.engine.Resolve(context.Background(), answerID))

	assert.Equal(t, 0, gw.removes)
	assert.Equal(t, 0, gw.creates)
	assert.Empty(t, questionEdits(t, fx, answerID))
}

func TestResolveManualQuestionSummary(t *testing.T) {
	gw := &fakeGateway{}
	fx := newFixture(t, gw)

	ctx := context.Background()
	group, err := fx.store.EnsureGroup(ctx, "depicts", "dog", "Q100")
	require.NoError(t, err)

	q := &model.Question{
		GroupID:  group.ID,
		UniqueID: "M1_Q100",
		Payload:  directPayload(),
		Manual:   true,
		Category: "Category:Dogs",
	}
	require.NoError(t, fx.store.CreateQuestion(ctx, q))
	a := &model.Answer{QuestionID: q.ID, UserID: 7, Value: model.AnswerYes}
	require.NoError(t, fx.store.CreateAnswer(ctx, a))
	require.NoError(t, fx.store.SaveCredential(ctx, &model.Credential{UserID: 7, Token: "tok", Secret: "sec"}))

	require.NoError(t, fx.engine.Resolve(ctx, a.ID))

	edits, err := fx.store.EditsForQuestion(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "(manual category Category:Dogs/Q100) adding depicts statement", edits[0].Summary)
}
