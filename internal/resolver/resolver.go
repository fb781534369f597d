package resolver

import (
	"context"
	"errors"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/2beens/fitplan/internal/exercisecatalog"
	"github.com/2beens/fitplan/internal/intake"
	"github.com/2beens/fitplan/internal/templates"
)

var ErrUnsupportedCombination = errors.New("unsupported combination")

// UnsupportedCombinationError names the first level of
// programs[location][goal][experience] that is missing.
type UnsupportedCombinationError struct {
	TemplateID string
	Location   string
	Goal       string
	Experience string
	Missing    string
}

func (e *UnsupportedCombinationError) Error() string {
	return fmt.Sprintf(
		"template [%s] has no program for %s/%s/%s (missing %s)",
		e.TemplateID, e.Location, e.Goal, e.Experience, e.Missing,
	)
}

func (e *UnsupportedCombinationError) Is(target error) bool {
	return target == ErrUnsupportedCombination
}

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=resolver_test

type exerciseLookup interface {
	GetByID(ctx context.Context, exerciseID string) (*exercisecatalog.Exercise, error)
}

// Resolve returns a private copy of the sessions the template defines for
// the criteria. Starter templates ignore the criteria.
func Resolve(t *templates.Template, criteria intake.Criteria) ([]templates.Session, error) {
	if t == nil {
		return nil, errors.New("resolve: nil template")
	}

	switch t.Type {
	case templates.TypeStarter:
		if t.Starter == nil {
			return nil, fmt.Errorf("template [%s]: starter program missing", t.ID)
		}
		return templates.CloneSessions(t.Starter.Sessions), nil
	case templates.TypeAdvanced:
		if t.Advanced == nil {
			return nil, fmt.Errorf("template [%s]: advanced program missing", t.ID)
		}
		c := criteria.Normalized().WithDefaults()
		uErr := &UnsupportedCombinationError{
			TemplateID: t.ID,
			Location:   c.Location,
			Goal:       c.Goal,
			Experience: c.ExperienceLevel,
		}
		byGoal, ok := t.Advanced.Programs[c.Location]
		if !ok {
			uErr.Missing = "location"
			return nil, uErr
		}
		byExperience, ok := byGoal[c.Goal]
		if !ok {
			uErr.Missing = "goal"
			return nil, uErr
		}
		sessions, ok := byExperience[c.ExperienceLevel]
		if !ok {
			uErr.Missing = "experience"
			return nil, uErr
		}
		return templates.CloneSessions(sessions), nil
	default:
		return nil, fmt.Errorf("template [%s]: unknown type %q", t.ID, t.Type)
	}
}

// Describe resolves the display identity of an exercise id from the
// template library, then the exercise catalog, then the id itself.
func Describe(ctx context.Context, exerciseID string, library map[string]templates.ExerciseDef, lookup exerciseLookup) templates.ExerciseIdentity {
	id := templates.ExerciseIdentity{ExerciseID: exerciseID}
	if def, ok := library[exerciseID]; ok {
		id.Name = def.Name
		id.NameAR = def.NameAR
		id.Equipment = slices.Clone(def.Equipment)
		id.Muscles = slices.Clone(def.Muscles)
		id.VideoID = def.VideoID
	}
	if id.Name == "" && lookup != nil {
		if ex := fetch(ctx, lookup, exerciseID); ex != nil {
			fillFromCatalog(&id, ex)
		}
	}
	if id.Name == "" {
		id.Name = exerciseID
	}
	return id
}

// Enrich returns a copy of sessions with missing display data filled in.
// Catalog failures are logged and never fail the run.
func Enrich(ctx context.Context, sessions []templates.Session, library map[string]templates.ExerciseDef, lookup exerciseLookup) []templates.Session {
	out := templates.CloneSessions(sessions)
	fetched := map[string]*exercisecatalog.Exercise{}

	for si := range out {
		for wi := range out[si].Work {
			a := &out[si].Work[wi]
			if def, ok := library[a.ExerciseID]; ok {
				fillFromLibrary(a, def)
			}
			if a.Name != "" && a.VideoID != "" && (a.Equipment != nil || a.Muscles != nil) {
				continue
			}

			if lookup != nil {
				ex, seen := fetched[a.ExerciseID]
				if !seen {
					ex = fetch(ctx, lookup, a.ExerciseID)
					fetched[a.ExerciseID] = ex
				}
				if ex != nil {
					id := a.CurrentIdentity()
					fillFromCatalog(&id, ex)
					apply(a, id)
				}
			}
			if a.Name == "" {
				a.Name = a.ExerciseID
			}
		}
	}
	return out
}

func fetch(ctx context.Context, lookup exerciseLookup, exerciseID string) *exercisecatalog.Exercise {
	ex, err := lookup.GetByID(ctx, exerciseID)
	if err != nil {
		log.Warnf("exercise catalog lookup [%s]: %s", exerciseID, err)
		return nil
	}
	return ex
}

func fillFromLibrary(a *templates.ExerciseAssignment, def templates.ExerciseDef) {
	if a.Name == "" {
		a.Name = def.Name
	}
	if a.NameAR == "" {
		a.NameAR = def.NameAR
	}
	if a.Equipment == nil {
		a.Equipment = slices.Clone(def.Equipment)
	}
	if a.Muscles == nil {
		a.Muscles = slices.Clone(def.Muscles)
	}
	if a.VideoID == "" {
		a.VideoID = def.VideoID
	}
}

func fillFromCatalog(id *templates.ExerciseIdentity, ex *exercisecatalog.Exercise) {
	if id.Name == "" {
		id.Name = ex.Name
	}
	if id.NameAR == "" {
		id.NameAR = ex.NameAR
	}
	if id.Equipment == nil {
		id.Equipment = slices.Clone(ex.Equipment)
	}
	if id.Muscles == nil {
		id.Muscles = slices.Clone(ex.Muscles)
		if id.Muscles == nil && ex.MuscleGroup != "" {
			id.Muscles = []string{ex.MuscleGroup}
		}
	}
	if id.VideoID == "" {
		id.VideoID = ex.VideoID
	}
}

func apply(a *templates.ExerciseAssignment, id templates.ExerciseIdentity) {
	a.Name = id.Name
	a.NameAR = id.NameAR
	a.Equipment = id.Equipment
	a.Muscles = id.Muscles
	a.VideoID = id.VideoID
}
