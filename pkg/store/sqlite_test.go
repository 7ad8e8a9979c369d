package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"depictor/pkg/db"
	"depictor/pkg/model"
	"depictor/pkg/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "store_test.db"))
	if err != nil {
		t.Fatalf("db.Init failed: %v", err)
	}
	s := store.NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEnsureGroupIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g1, err := s.EnsureGroup(ctx, "depicts", "depicts_Q144", "Q144")
	if err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	g2, err := s.EnsureGroup(ctx, "depicts", "depicts_Q144", "Q144")
	if err != nil {
		t.Fatalf("second EnsureGroup failed: %v", err)
	}
	if g1.ID != g2.ID {
		t.Errorf("expected same group, got %d and %d", g1.ID, g2.ID)
	}

	// Different parent for the same target is a separate group
	g3, err := s.EnsureGroup(ctx, "depicts-refine", "depicts_refine_Q144", "Q144")
	if err != nil {
		t.Fatalf("refine EnsureGroup failed: %v", err)
	}
	if g3.ID == g1.ID {
		t.Error("refine group must be distinct from direct-add group")
	}
}

func TestQuestionUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, err := s.EnsureGroup(ctx, "depicts", "depicts_Q144", "Q144")
	if err != nil {
		t.Fatal(err)
	}

	q := &model.Question{
		GroupID:  g.ID,
		UniqueID: "M123_Q144",
		Payload: model.QuestionPayload{
			MediaInfoID: "M123",
			DepictsID:   "Q144",
			DepictsName: "dog",
			ImgURL:      "https://upload.example/dog.jpg",
		},
	}
	if err := s.CreateQuestion(ctx, q); err != nil {
		t.Fatalf("CreateQuestion failed: %v", err)
	}
	if q.ID == 0 {
		t.Error("expected question ID to be set")
	}

	dup := &model.Question{GroupID: g.ID, UniqueID: "M123_Q144", Payload: q.Payload}
	if err := s.CreateQuestion(ctx, dup); !errors.Is(err, store.ErrDuplicateQuestion) {
		t.Errorf("expected ErrDuplicateQuestion, got %v", err)
	}

	found, err := s.HasQuestion(ctx, []int64{g.ID}, "M123_Q144")
	if err != nil || !found {
		t.Errorf("HasQuestion = %v, %v; want true, nil", found, err)
	}
	found, err = s.HasQuestion(ctx, []int64{g.ID}, "M999_Q144")
	if err != nil || found {
		t.Errorf("HasQuestion for absent id = %v, %v; want false, nil", found, err)
	}

	got, err := s.GetQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("GetQuestion failed: %v", err)
	}
	if got.Payload.DepictsID != "Q144" || got.Payload.IsRefine() {
		t.Errorf("payload round-trip mismatch: %+v", got.Payload)
	}
}

func TestCountUnanswered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, _ := s.EnsureGroup(ctx, "depicts", "depicts_Q144", "Q144")
	gr, _ := s.EnsureGroup(ctx, "depicts-refine", "depicts_refine_Q144", "Q144")

	for i, uid := range []string{"M1_Q144", "M2_Q144"} {
		q := &model.Question{GroupID: g.ID, UniqueID: uid, Payload: model.QuestionPayload{MediaInfoID: uid, DepictsID: "Q144"}}
		if err := s.CreateQuestion(ctx, q); err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			a := &model.Answer{QuestionID: q.ID, UserID: 7, Value: model.AnswerYes}
			if err := s.CreateAnswer(ctx, a); err != nil {
				t.Fatal(err)
			}
		}
	}

	n, err := s.CountUnanswered(ctx, []int64{g.ID, gr.ID})
	if err != nil {
		t.Fatalf("CountUnanswered failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 unanswered, got %d", n)
	}
}

func TestAnswerUniquePerUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, _ := s.EnsureGroup(ctx, "depicts", "depicts_Q1", "Q1")
	q := &model.Question{GroupID: g.ID, UniqueID: "M1_Q1", Payload: model.QuestionPayload{MediaInfoID: "M1", DepictsID: "Q1"}}
	if err := s.CreateQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}

	a := &model.Answer{QuestionID: q.ID, UserID: 1, Value: model.AnswerYes}
	if err := s.CreateAnswer(ctx, a); err != nil {
		t.Fatal(err)
	}
	dup := &model.Answer{QuestionID: q.ID, UserID: 1, Value: model.AnswerNo}
	if err := s.CreateAnswer(ctx, dup); !errors.Is(err, store.ErrDuplicateAnswer) {
		t.Errorf("expected ErrDuplicateAnswer, got %v", err)
	}
	// A second user may answer the same question
	other := &model.Answer{QuestionID: q.ID, UserID: 2, Value: model.AnswerYes}
	if err := s.CreateAnswer(ctx, other); err != nil {
		t.Errorf("second user's answer failed: %v", err)
	}
}

func TestEditsForQuestionOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, _ := s.EnsureGroup(ctx, "depicts", "depicts_Q1", "Q1")
	q := &model.Question{GroupID: g.ID, UniqueID: "M1_Q1", Payload: model.QuestionPayload{MediaInfoID: "M1", DepictsID: "Q1"}}
	if err := s.CreateQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}

	for _, rev := range []int64{100, 101} {
		e := &model.Edit{QuestionID: q.ID, UserID: 1, RevisionID: rev, Summary: "depicts"}
		if err := s.CreateEdit(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	edits, err := s.EditsForQuestion(ctx, q.ID)
	if err != nil {
		t.Fatalf("EditsForQuestion failed: %v", err)
	}
	if len(edits) != 2 || edits[0].RevisionID != 100 || edits[1].RevisionID != 101 {
		t.Errorf("unexpected edits: %+v", edits)
	}
}

func TestSetRefineOldDepicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, _ := s.EnsureGroup(ctx, "depicts-refine", "depicts_refine_Q100", "Q100")
	q := &model.Question{
		GroupID:  g.ID,
		UniqueID: "M5_Q100",
		Payload:  model.QuestionPayload{MediaInfoID: "M5", DepictsID: "Q100", DepictsName: "golden retriever"},
	}
	if err := s.CreateQuestion(ctx, q); err != nil {
		t.Fatal(err)
	}

	if err := s.SetRefineOldDepicts(ctx, q.ID, "Q144", "dog"); err != nil {
		t.Fatalf("SetRefineOldDepicts failed: %v", err)
	}

	got, err := s.GetQuestion(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Payload.IsRefine() || got.Payload.OldDepictsID != "Q144" || got.Payload.OldDepictsName != "dog" {
		t.Errorf("refine payload mismatch: %+v", got.Payload)
	}
}

func TestCredentialLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.GetCredential(ctx, 42)
	if err != nil || c != nil {
		t.Fatalf("expected nil credential for logged-out user, got %v, %v", c, err)
	}

	if err := s.SaveCredential(ctx, &model.Credential{UserID: 42, Token: "tok", Secret: "sec"}); err != nil {
		t.Fatal(err)
	}
	c, err = s.GetCredential(ctx, 42)
	if err != nil || c == nil || c.Token != "tok" {
		t.Fatalf("expected stored credential, got %v, %v", c, err)
	}

	if err := s.DeleteCredential(ctx, 42); err != nil {
		t.Fatal(err)
	}
	c, _ = s.GetCredential(ctx, 42)
	if c != nil {
		t.Error("expected credential removed after delete")
	}
}

func TestCacheTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetCache(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	if val, ok := s.GetCache(ctx, "k", time.Hour); !ok || string(val) != "v" {
		t.Errorf("expected fresh hit, got %q, %v", val, ok)
	}
	// Zero maxAge means no expiry
	if _, ok := s.GetCache(ctx, "k", 0); !ok {
		t.Error("expected hit with no expiry")
	}
	if _, ok := s.GetCache(ctx, "missing", time.Hour); ok {
		t.Error("expected miss for absent key")
	}
}
