package depicts

import (
	"depictor/pkg/model"
	"depictor/pkg/taxonomy"
)

// State describes how a target value relates to an entity's existing
// depicts statements.
type State int

const (
	// StateNone means no existing statement relates to the target.
	StateNone State = iota
	// StateExact means a statement already carries the target value.
	StateExact
	// StateMoreSpecific means an existing statement is narrower than the
	// target, so the target fact is already implied.
	StateMoreSpecific
	// StateLessSpecific means an existing statement is broader than the
	// target and could be refined to it.
	StateLessSpecific
)

func (s State) String() string {
	switch s {
	case StateExact:
		return "exact"
	case StateMoreSpecific:
		return "more-specific"
	case StateLessSpecific:
		return "less-specific"
	default:
		return "none"
	}
}

// Satisfied reports whether the target fact is already covered.
func (s State) Satisfied() bool {
	return s == StateExact || s == StateMoreSpecific
}

// Result is the outcome of classifying a target against existing statements.
type Result struct {
	State State

	// Matched is the statement that produced an exact or more-specific
	// verdict, when there is one.
	Matched *model.Statement

	// Superseded is the broader statement a refinement would replace.
	// Only meaningful for StateLessSpecific; when Ambiguous is set there
	// were several candidates and callers must not auto-resolve.
	Superseded *model.Statement
	Ambiguous  bool

	ExactCount        int
	MoreSpecificCount int
	LessSpecificCount int
}

// Classify compares targetValue against the entity's existing statements
// using the target's closure sets. Precedence: exact > more-specific >
// less-specific > none. Statements without a concrete value (novalue/
// somevalue snaks) are ignored.
//
// Pure function: no I/O, no mutation of inputs.
func Classify(existing []model.Statement, targetValue string, descendants, ancestors taxonomy.Set) Result {
	res := Result{State: StateNone}

	for i := range existing {
		st := &existing[i]
		if !st.HasValue() {
			continue
		}

		switch {
		case st.Value == targetValue:
			res.State = StateExact
			res.Matched = st
			res.ExactCount++
			// Exact match is terminal
			return res

		case descendants.Contains(st.Value):
			res.State = StateMoreSpecific
			res.Matched = st
			res.MoreSpecificCount++
			// A narrower fact already covers the target
			return res

		case ancestors.Contains(st.Value):
			res.LessSpecificCount++
			if res.State == StateNone {
				res.State = StateLessSpecific
				res.Superseded = st
			}
			// Keep scanning: a later statement could still be exact or
			// more specific, and those take precedence
		}
	}

	if res.LessSpecificCount > 1 {
		// Several broader statements: refuse to guess which one a
		// refinement should replace
		res.Ambiguous = true
	}

	return res
}

// CountExact returns how many statements carry exactly value. The swap
// path requires exactly one before it will remove anything.
func CountExact(existing []model.Statement, value string) (int, *model.Statement) {
	var found *model.Statement
	count := 0
	for i := range existing {
		if existing[i].HasValue() && existing[i].Value == value {
			count++
			if found == nil {
				found = &existing[i]
			}
		}
	}
	return count, found
}
