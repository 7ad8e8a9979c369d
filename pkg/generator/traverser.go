package generator

import (
	"context"
	"log/slog"

	"depictor/pkg/model"
	"depictor/pkg/mwapi"
)

// Signal is a visitor's verdict on how the traversal should proceed.
type Signal int

const (
	// SignalContinue keeps descending.
	SignalContinue Signal = iota
	// SignalPrune skips the visited category's subtree.
	SignalPrune
	// SignalStop ends the whole traversal.
	SignalStop
)

// Visitor receives category and file pages during a descent. Returning
// SignalStop from either method terminates the traversal cooperatively.
type Visitor interface {
	VisitCategory(p model.PageInfo) Signal
	VisitFile(p model.PageInfo) Signal
}

// Traverser walks a category tree.
type Traverser interface {
	Descend(ctx context.Context, rootCategory string, v Visitor) error
}

// CategoryLister is the slice of the wiki gateway the traverser needs.
type CategoryLister interface {
	CategoryMembers(ctx context.Context, categoryTitle string) ([]model.PageInfo, error)
}

// CategoryTraverser descends a Commons category tree breadth-first,
// visiting files and subcategories via the Action API.
type CategoryTraverser struct {
	lister CategoryLister
	logger *slog.Logger
}

func NewCategoryTraverser(lister CategoryLister, logger *slog.Logger) *CategoryTraverser {
	return &CategoryTraverser{lister: lister, logger: logger}
}

// Descend visits rootCategory's members level by level. Category cycles
// are broken with a seen-set; each category is listed at most once.
func (t *CategoryTraverser) Descend(ctx context.Context, rootCategory string, v Visitor) error {
	seen := map[string]bool{rootCategory: true}
	queue := []string{rootCategory}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		cat := queue[0]
		queue = queue[1:]

		members, err := t.lister.CategoryMembers(ctx, cat)
		if err != nil {
			return err
		}
		t.logger.Debug("category listed", "category", cat, "members", len(members))

		for _, m := range members {
			switch m.Namespace {
			case mwapi.NamespaceCategory:
				switch v.VisitCategory(m) {
				case SignalStop:
					return nil
				case SignalPrune:
					continue
				}
				if !seen[m.Title] {
					seen[m.Title] = true
					queue = append(queue, m.Title)
				}
			case mwapi.NamespaceFile:
				if v.VisitFile(m) == SignalStop {
					return nil
				}
			}
		}
	}
	return nil
}
