package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"depictor/pkg/config"
	"depictor/pkg/depicts"
	"depictor/pkg/model"
	"depictor/pkg/mwapi"
	"depictor/pkg/store"
	"depictor/pkg/taxonomy"
	"depictor/pkg/tracker"
)

// Parent group names. Every target entity gets one group under each.
const (
	GroupDepicts       = "depicts"
	GroupDepictsRefine = "depicts-refine"
)

// Gateway is the slice of the wiki client the generator reads through.
type Gateway interface {
	CategoryLister
	GetStatements(ctx context.Context, entityID, propertyID string) ([]model.Statement, error)
	ThumbnailURL(ctx context.Context, fileTitle string, maxWidth, maxHeight int) (string, error)
	GetLabel(ctx context.Context, id string) (string, error)
}

// ClosureProvider resolves taxonomy closures for a root entity.
type ClosureProvider interface {
	DescendantsOf(ctx context.Context, rootID string) (taxonomy.Set, error)
	AncestorsOf(ctx context.Context, rootID string) (taxonomy.Set, error)
}

// RunStats summarizes one generation run.
type RunStats struct {
	Generated int
	Skipped   int
}

// QuestionWriter is the store access the generator needs.
type QuestionWriter interface {
	store.GroupStore
	store.QuestionStore
}

// Generator walks a category tree and emits review questions for files
// whose depicts statements do not yet cover the target entity.
type Generator struct {
	store     QuestionWriter
	gateway   Gateway
	closures  ClosureProvider
	traverser Traverser
	tracker   *tracker.Tracker
	logger    *slog.Logger

	property    string // e.g. "P180"
	limit       int
	thumbWidth  int
	thumbHeight int
	extensions  map[string]bool
	ignoreNames map[string]bool
	ignoreRes   []*regexp.Regexp
}

// New builds a generator from configuration. The ignore patterns must
// already compile; Load validates them.
func New(
	s QuestionWriter,
	gateway Gateway,
	closures ClosureProvider,
	traverser Traverser,
	t *tracker.Tracker,
	cfg config.GeneratorConfig,
	property string,
	logger *slog.Logger,
) (*Generator, error) {
	res, err := cfg.CompiledIgnorePatterns()
	if err != nil {
		return nil, err
	}

	exts := make(map[string]bool, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = true
	}
	names := make(map[string]bool, len(cfg.IgnoredCategories))
	for _, n := range cfg.IgnoredCategories {
		names[n] = true
	}

	limit := cfg.Limit
	if limit <= 0 {
		limit = 250
	}

	return &Generator{
		store:       s,
		gateway:     gateway,
		closures:    closures,
		traverser:   traverser,
		tracker:     t,
		logger:      logger,
		property:    property,
		limit:       limit,
		thumbWidth:  cfg.ThumbWidth,
		thumbHeight: cfg.ThumbHeight,
		extensions:  exts,
		ignoreNames: names,
		ignoreRes:   res,
	}, nil
}

// Run generates questions for (category, targetID). Re-running over the
// same pair is safe: covered files are skipped via their unique ID.
func (g *Generator) Run(ctx context.Context, category, targetID string, manual bool) (RunStats, error) {
	var stats RunStats

	targetName, err := g.gateway.GetLabel(ctx, targetID)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve target label: %w", err)
	}
	if targetName == "" {
		targetName = targetID
	}

	direct, err := g.store.EnsureGroup(ctx, GroupDepicts, targetName, targetID)
	if err != nil {
		return stats, err
	}
	refine, err := g.store.EnsureGroup(ctx, GroupDepictsRefine, targetName, targetID)
	if err != nil {
		return stats, err
	}
	groupIDs := []int64{direct.ID, refine.ID}

	unanswered, err := g.store.CountUnanswered(ctx, groupIDs)
	if err != nil {
		return stats, err
	}
	if unanswered >= g.limit {
		g.logger.Info("generation skipped, target saturated",
			"category", category, "target", targetID, "unanswered", unanswered, "limit", g.limit)
		return stats, nil
	}

	descendants, err := g.closures.DescendantsOf(ctx, targetID)
	if err != nil {
		return stats, err
	}
	ancestors, err := g.closures.AncestorsOf(ctx, targetID)
	if err != nil {
		return stats, err
	}

	v := &runVisitor{
		g:           g,
		ctx:         ctx,
		category:    category,
		targetID:    targetID,
		targetName:  targetName,
		manual:      manual,
		directGroup: direct,
		refineGroup: refine,
		groupIDs:    groupIDs,
		descendants: descendants,
		ancestors:   ancestors,
		remaining:   g.limit - unanswered,
		stats:       &stats,
	}

	if err := g.traverser.Descend(ctx, category, v); err != nil {
		return stats, err
	}
	if v.err != nil {
		return stats, v.err
	}

	g.logger.Info("generation run finished",
		"category", category, "target", targetID,
		"generated", stats.Generated, "skipped", stats.Skipped)
	return stats, nil
}

// ignoresCategory applies the exact-name and regex filters to a category
// title (without its namespace prefix).
func (g *Generator) ignoresCategory(title string) bool {
	name := strings.TrimPrefix(title, "Category:")
	if g.ignoreNames[name] {
		return true
	}
	for _, re := range g.ignoreRes {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// allowedExtension checks a file title against the extension allow-list.
func (g *Generator) allowedExtension(title string) bool {
	i := strings.LastIndex(title, ".")
	if i < 0 || i == len(title)-1 {
		return false
	}
	return g.extensions[strings.ToLower(title[i+1:])]
}

// runVisitor carries the per-run state through the traversal.
type runVisitor struct {
	g           *Generator
	ctx         context.Context
	category    string
	targetID    string
	targetName  string
	manual      bool
	directGroup *model.QuestionGroup
	refineGroup *model.QuestionGroup
	groupIDs    []int64
	descendants taxonomy.Set
	ancestors   taxonomy.Set
	remaining   int
	stats       *RunStats
	err         error // First fatal error; set before returning SignalStop
}

func (v *runVisitor) VisitCategory(p model.PageInfo) Signal {
	if v.remaining <= 0 {
		return SignalStop
	}
	if v.g.ignoresCategory(p.Title) {
		v.g.logger.Debug("category ignored", "category", p.Title)
		return SignalPrune
	}
	return SignalContinue
}

func (v *runVisitor) VisitFile(p model.PageInfo) Signal {
	if v.remaining <= 0 {
		return SignalStop
	}

	created, err := v.processFile(p)
	if err != nil {
		v.err = err
		return SignalStop
	}
	if created {
		v.remaining--
		v.stats.Generated++
		v.g.tracker.TrackQuestionGenerated()
	} else {
		v.stats.Skipped++
		v.g.tracker.TrackFileSkipped()
	}
	return SignalContinue
}

// processFile classifies one file page and creates at most one question.
// Returns (false, nil) for every skip; a non-nil error aborts the run.
func (v *runVisitor) processFile(p model.PageInfo) (bool, error) {
	g := v.g

	if !g.allowedExtension(p.Title) {
		return false, nil
	}

	mediaInfoID := p.MediaInfoID()
	uniqueID := mediaInfoID + "_" + v.targetID

	exists, err := g.store.HasQuestion(v.ctx, v.groupIDs, uniqueID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	statements, err := g.gateway.GetStatements(v.ctx, mediaInfoID, g.property)
	if err != nil {
		if errors.Is(err, mwapi.ErrEntityNotFound) {
			g.logger.Debug("file has no entity, skipping", "file", p.Title)
			return false, nil
		}
		return false, err
	}

	res := depicts.Classify(statements, v.targetID, v.descendants, v.ancestors)
	switch {
	case res.State.Satisfied():
		g.logger.Debug("file already covered", "file", p.Title, "state", res.State.String())
		return false, nil

	case res.Ambiguous:
		g.logger.Info("ambiguous depicts state, skipping",
			"file", p.Title, "target", v.targetID, "less_specific", res.LessSpecificCount)
		return false, nil
	}

	imgURL, err := g.gateway.ThumbnailURL(v.ctx, p.Title, g.thumbWidth, g.thumbHeight)
	if err != nil {
		return false, err
	}

	payload := model.QuestionPayload{
		MediaInfoID: mediaInfoID,
		DepictsID:   v.targetID,
		DepictsName: v.targetName,
		ImgURL:      imgURL,
	}

	groupID := v.directGroup.ID
	if res.Superseded != nil {
		oldName, err := g.gateway.GetLabel(v.ctx, res.Superseded.Value)
		if err != nil {
			return false, err
		}
		payload.OldDepictsID = res.Superseded.Value
		payload.OldDepictsName = oldName
		groupID = v.refineGroup.ID
	} else if imgURL == "" {
		// A direct-add question without an image is unreviewable.
		g.logger.Debug("no thumbnail available, skipping", "file", p.Title)
		return false, nil
	}

	q := &model.Question{
		GroupID:  groupID,
		UniqueID: uniqueID,
		Payload:  payload,
		Manual:   v.manual,
		Category: v.category,
	}
	if err := g.store.CreateQuestion(v.ctx, q); err != nil {
		if errors.Is(err, store.ErrDuplicateQuestion) {
			// A concurrent run got there first.
			return false, nil
		}
		return false, err
	}

	g.logger.Debug("question created",
		"file", p.Title, "target", v.targetID, "refine", payload.IsRefine())
	return true, nil
}
