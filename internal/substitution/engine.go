package substitution

import (
	"context"
	"fmt"
	"slices"

	"github.com/2beens/fitplan/internal/exercisecatalog"
	"github.com/2beens/fitplan/internal/injuries"
	"github.com/2beens/fitplan/internal/resolver"
	"github.com/2beens/fitplan/internal/telemetry/tracing"
	"github.com/2beens/fitplan/internal/templates"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type WarningKind string

const (
	WarningNoSubstitute   WarningKind = "no_substitute"
	WarningUnsafeFallback WarningKind = "unsafe_fallback"
)

// Warning flags an exercise the engine could not make safe.
type Warning struct {
	Kind         WarningKind `json:"kind"`
	ExerciseID   string      `json:"exerciseId"`
	ExerciseName string      `json:"exerciseName"`
	Day          int         `json:"day"`
	Week         int         `json:"week,omitempty"`
	Injury       string      `json:"injury"`
	Injuries     []string    `json:"injuries"`
	Substitute   string      `json:"substitute,omitempty"`
	Message      string      `json:"message"`
}

type Options struct {
	// Available restricts substitutes to these exercise ids when non-empty.
	Available []string
	Library   map[string]templates.ExerciseDef
	// TemplateSwaps is injury -> exercise id -> preferred substitutes.
	TemplateSwaps map[string]map[string][]string
}

type Result struct {
	Sessions    []templates.Session
	Warnings    []Warning
	Substituted int
	Restored    int
}

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=substitution_test

type exerciseLookup interface {
	GetByID(ctx context.Context, exerciseID string) (*exercisecatalog.Exercise, error)
}

type Engine struct {
	table  *injuries.Table
	lookup exerciseLookup
}

// NewEngine accepts a nil table (nothing is ever avoided) and a nil lookup.
func NewEngine(table *injuries.Table, lookup exerciseLookup) *Engine {
	if table == nil {
		table = injuries.New()
	}
	return &Engine{
		table:  table,
		lookup: lookup,
	}
}

// Apply returns a copy of sessions in which every exercise that conflicts
// with the injuries is replaced by a safe substitute where one exists.
// Matching always uses the exercise the template declared, so applying the
// result again yields the same result.
func (e *Engine) Apply(ctx context.Context, sessions []templates.Session, injuryCodes []string, opts Options) (_ *Result, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "substitution.apply")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Sessions: templates.CloneSessions(sessions)}
	available := toSet(opts.Available)
	described := map[string]templates.ExerciseIdentity{}
	describe := func(id string) templates.ExerciseIdentity {
		if ident, ok := described[id]; ok {
			return ident
		}
		ident := resolver.Describe(ctx, id, opts.Library, e.lookup)
		described[id] = ident
		return ident
	}

	for si := range res.Sessions {
		s := &res.Sessions[si]
		for wi := range s.Work {
			a := &s.Work[wi]
			orig := a.Identity()

			verdict := e.table.Check(orig.ExerciseID, orig.Name, injuryCodes)
			if !verdict.Avoid {
				if a.Original != nil {
					*a = restore(*a)
					res.Restored++
				}
				continue
			}

			candidates := e.candidates(orig.ExerciseID, injuryCodes, opts.TemplateSwaps, available)
			if len(candidates) == 0 {
				if a.Original != nil {
					*a = restore(*a)
				}
				log.Warnf("no substitute for [%s] (%s), keeping it", orig.ExerciseID, verdict.Injury)
				res.Warnings = append(res.Warnings, Warning{
					Kind:         WarningNoSubstitute,
					ExerciseID:   orig.ExerciseID,
					ExerciseName: orig.Name,
					Day:          s.Day,
					Week:         s.Week,
					Injury:       verdict.Injury,
					Injuries:     append([]string(nil), injuryCodes...),
					Message:      fmt.Sprintf("%s. No substitute available.", verdict.Reason),
				})
				continue
			}

			chosen, unsafe := "", true
			for _, c := range candidates {
				if !e.table.Check(c, describe(c).Name, injuryCodes).Avoid {
					chosen, unsafe = c, false
					break
				}
			}
			if unsafe {
				chosen = candidates[0]
				res.Warnings = append(res.Warnings, Warning{
					Kind:         WarningUnsafeFallback,
					ExerciseID:   orig.ExerciseID,
					ExerciseName: orig.Name,
					Day:          s.Day,
					Week:         s.Week,
					Injury:       verdict.Injury,
					Injuries:     append([]string(nil), injuryCodes...),
					Substitute:   chosen,
					Message:      fmt.Sprintf("%s. Every substitute also conflicts, using %s.", verdict.Reason, chosen),
				})
			}

			*a = substitute(*a, orig, describe(chosen), verdict, unsafe)
			res.Substituted++
			log.Debugf("substituted [%s] with [%s] for %s", orig.ExerciseID, chosen, verdict.Injury)
		}
	}

	span.SetAttributes(
		attribute.Int("substitution.substituted", res.Substituted),
		attribute.Int("substitution.warnings", len(res.Warnings)),
	)
	return res, nil
}

// candidates lists template swaps for the exercise (per injury, in caller
// order) followed by the mapping table substitutes, without duplicates.
func (e *Engine) candidates(exerciseID string, injuryCodes []string, swaps map[string]map[string][]string, available map[string]struct{}) []string {
	seen := map[string]struct{}{exerciseID: {}}
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		if len(available) > 0 {
			if _, ok := available[id]; !ok {
				return
			}
		}
		out = append(out, id)
	}

	for _, code := range injuryCodes {
		for _, id := range swaps[code][exerciseID] {
			add(id)
		}
	}
	for _, id := range e.table.Substitutes(injuryCodes) {
		add(id)
	}
	return out
}

func substitute(a templates.ExerciseAssignment, orig templates.ExerciseIdentity, sub templates.ExerciseIdentity, verdict injuries.Verdict, unsafe bool) templates.ExerciseAssignment {
	out := a.Clone()
	out.ExerciseID = sub.ExerciseID
	out.Name = sub.Name
	out.NameAR = sub.NameAR
	out.Equipment = slices.Clone(sub.Equipment)
	out.Muscles = slices.Clone(sub.Muscles)
	out.VideoID = sub.VideoID
	out.WasSubstituted = true
	out.Original = &orig
	out.SubstitutionReason = verdict.Reason
	out.SubstitutionInjury = verdict.Injury
	out.SubstitutionUnsafe = unsafe
	return out
}

func restore(a templates.ExerciseAssignment) templates.ExerciseAssignment {
	orig := a.Identity()
	out := a.Clone()
	out.ExerciseID = orig.ExerciseID
	out.Name = orig.Name
	out.NameAR = orig.NameAR
	out.Equipment = orig.Equipment
	out.Muscles = orig.Muscles
	out.VideoID = orig.VideoID
	out.WasSubstituted = false
	out.Original = nil
	out.SubstitutionReason = ""
	out.SubstitutionInjury = ""
	out.SubstitutionUnsafe = false
	return out
}

func toSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
