package depicts

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"depictor/pkg/model"
	"depictor/pkg/taxonomy"
)

func set(ids ...string) taxonomy.Set {
	s := make(taxonomy.Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func stmts(values ...string) []model.Statement {
	out := make([]model.Statement, len(values))
	for i, v := range values {
		out[i] = model.Statement{ID: "M1$guid" + v, Property: "P180", Value: v, Rank: model.RankNormal}
	}
	return out
}

func TestClassifyNone(t *testing.T) {
	res := Classify(stmts("Q7", "Q8"), "Q100", set("Q200"), set("Q300"))

	assert.Equal(t, StateNone, res.State)
	assert.Nil(t, res.Matched)
	assert.Nil(t, res.Superseded)
	assert.False(t, res.Ambiguous)
}

func TestClassifyExact(t *testing.T) {
	res := Classify(stmts("Q7", "Q100"), "Q100", set(), set())

	assert.Equal(t, StateExact, res.State)
	assert.NotNil(t, res.Matched)
	assert.Equal(t, "Q100", res.Matched.Value)
	assert.True(t, res.State.Satisfied())
}

func TestClassifyMoreSpecific(t *testing.T) {
	// Entity already depicts Q200, a descendant of the target Q100
	res := Classify(stmts("Q200"), "Q100", set("Q200"), set())

	assert.Equal(t, StateMoreSpecific, res.State)
	assert.Equal(t, "Q200", res.Matched.Value)
	assert.True(t, res.State.Satisfied())
}

func TestClassifyLessSpecific(t *testing.T) {
	// Entity depicts Q50, an ancestor of target Q100: refinement candidate
	res := Classify(stmts("Q50"), "Q100", set(), set("Q50"))

	assert.Equal(t, StateLessSpecific, res.State)
	assert.False(t, res.State.Satisfied())
	assert.NotNil(t, res.Superseded)
	assert.Equal(t, "Q50", res.Superseded.Value)
	assert.False(t, res.Ambiguous)
}

func TestExactBeatsLessSpecificRegardlessOfOrder(t *testing.T) {
	desc := set()
	anc := set("Q50")

	// Ancestor first, exact later
	res := Classify(stmts("Q50", "Q100"), "Q100", desc, anc)
	assert.Equal(t, StateExact, res.State)

	// Exact first, ancestor later
	res = Classify(stmts("Q100", "Q50"), "Q100", desc, anc)
	assert.Equal(t, StateExact, res.State)
}

func TestMoreSpecificBeatsLessSpecific(t *testing.T) {
	res := Classify(stmts("Q50", "Q200"), "Q100", set("Q200"), set("Q50"))
	assert.Equal(t, StateMoreSpecific, res.State)
}

func TestAmbiguousLessSpecific(t *testing.T) {
	// Two distinct broader statements, none exact or narrower
	res := Classify(stmts("Q50", "Q60"), "Q100", set(), set("Q50", "Q60"))

	assert.Equal(t, StateLessSpecific, res.State)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, 2, res.LessSpecificCount)
	// Superseded still points at the first candidate for diagnostics
	assert.Equal(t, "Q50", res.Superseded.Value)
}

func TestNoValueSnaksSkipped(t *testing.T) {
	existing := []model.Statement{
		{ID: "M1$a", Property: "P180", Value: "", Rank: model.RankNormal}, // novalue
		{ID: "M1$b", Property: "P180", Value: "Q100", Rank: model.RankNormal},
	}
	res := Classify(existing, "Q100", set(), set())
	assert.Equal(t, StateExact, res.State)

	res = Classify(existing[:1], "Q100", set(), set())
	assert.Equal(t, StateNone, res.State)
}

func TestClassifyEmptyStatements(t *testing.T) {
	res := Classify(nil, "Q100", set("Q200"), set("Q50"))
	assert.Equal(t, StateNone, res.State)
}

func TestCountExact(t *testing.T) {
	existing := stmts("Q50", "Q100", "Q100")

	n, st := CountExact(existing, "Q100")
	assert.Equal(t, 2, n)
	assert.Equal(t, "Q100", st.Value)

	n, st = CountExact(existing, "Q7")
	assert.Equal(t, 0, n)
	assert.Nil(t, st)
}
