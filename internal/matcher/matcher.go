package matcher

import (
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitplan/internal/intake"
	"github.com/2beens/fitplan/internal/templates"
)

var ErrTemplateNotFound = errors.New("template not found")

// NotFoundError is returned by MatchOrFail when no template of the type exists.
type NotFoundError struct {
	Type     templates.Type
	Criteria intake.Criteria
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf(
		"%s: no %s template for goal=%s location=%s days=%d",
		ErrTemplateNotFound, e.Type, e.Criteria.Goal, e.Criteria.Location, e.Criteria.TrainingDaysAvailable,
	)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

type templateSource interface {
	GetByType(typ templates.Type) []*templates.Template
}

// Match picks the best template of the given type. Each filter stage
// (goal, then location) is dropped when it would leave no candidates, so a
// non-empty catalog always yields a template. Returns nil only when the
// catalog has no template of the type.
func Match(catalog templateSource, criteria intake.Criteria, typ templates.Type) *templates.Template {
	candidates := catalog.GetByType(typ)
	if len(candidates) == 0 {
		log.Warnf("matcher: no %s templates in catalog", typ)
		return nil
	}

	c := criteria.Normalized()

	if c.Goal != "" {
		candidates = relax(candidates, func(t *templates.Template) bool {
			return t.SupportsGoal(c.Goal)
		}, "goal", c.Goal)
	}
	if c.Location != "" {
		candidates = relax(candidates, func(t *templates.Template) bool {
			return t.SupportsLocation(c.Location)
		}, "location", c.Location)
	}

	if c.TrainingDaysAvailable <= 0 {
		return candidates[0]
	}
	return closestDays(candidates, c.TrainingDaysAvailable)
}

// MatchOrFail is Match with the empty result turned into an error.
func MatchOrFail(catalog templateSource, criteria intake.Criteria, typ templates.Type) (*templates.Template, error) {
	t := Match(catalog, criteria, typ)
	if t == nil {
		return nil, &NotFoundError{Type: typ, Criteria: criteria}
	}
	return t, nil
}

func relax(candidates []*templates.Template, keep func(*templates.Template) bool, dimension, value string) []*templates.Template {
	var filtered []*templates.Template
	for _, t := range candidates {
		if keep(t) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		log.Debugf("matcher: no template for %s [%s], ignoring %s", dimension, value, dimension)
		return candidates
	}
	return filtered
}

// closestDays returns the first exact match, else the nearest training-day
// count. Ties keep catalog order.
func closestDays(candidates []*templates.Template, desired int) *templates.Template {
	for _, t := range candidates {
		if t.TrainingDays == desired {
			return t
		}
	}

	ranked := make([]*templates.Template, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return distance(ranked[i].TrainingDays, desired) < distance(ranked[j].TrainingDays, desired)
	})
	return ranked[0]
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
