package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitplan/internal/exercisecatalog"
	"github.com/2beens/fitplan/internal/experience"
	"github.com/2beens/fitplan/internal/injuries"
	"github.com/2beens/fitplan/internal/intake"
	"github.com/2beens/fitplan/internal/matcher"
	"github.com/2beens/fitplan/internal/plans"
	"github.com/2beens/fitplan/internal/resolver"
	"github.com/2beens/fitplan/internal/substitution"
	"github.com/2beens/fitplan/internal/telemetry/metrics"
	"github.com/2beens/fitplan/internal/telemetry/tracing"
	"github.com/2beens/fitplan/internal/templates"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

var ErrTemplateNotFound = matcher.ErrTemplateNotFound

type Request struct {
	UserID       string
	CoachID      string
	Criteria     intake.Criteria
	TemplateType templates.Type
	StartDate    time.Time
	// AvailableExercises restricts substitutes when non-empty.
	AvailableExercises []string
	// FallbackToStarter retries with the best starter template when an
	// advanced template has no program for the criteria.
	FallbackToStarter bool
	Customizations    plans.Customizations
}

type Result struct {
	Success      bool                   `json:"success"`
	Plan         *plans.Plan            `json:"plan,omitempty"`
	TemplateUsed string                 `json:"template,omitempty"`
	TemplateType templates.Type         `json:"type,omitempty"`
	Criteria     intake.Criteria        `json:"criteria"`
	Warnings     []substitution.Warning `json:"warnings,omitempty"`
	Substituted  int                    `json:"substituted"`
	FellBack     bool                   `json:"fellBack,omitempty"`
	// set only by GenerateMultiple
	TemplateID string `json:"templateId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Draft is a fully prepared plan that has not been persisted.
type Draft struct {
	Template    *templates.Template    `json:"template"`
	Criteria    intake.Criteria        `json:"criteria"`
	Sessions    []templates.Session    `json:"sessions"`
	Warnings    []substitution.Warning `json:"warnings,omitempty"`
	Substituted int                    `json:"substituted"`
	FellBack    bool                   `json:"fellBack,omitempty"`
}

type catalog interface {
	GetByID(id string) (*templates.Template, bool)
	GetByType(typ templates.Type) []*templates.Template
}

type Params struct {
	Catalog  catalog
	Injuries *injuries.Holder
	Lookup   exercisecatalog.Lookup
	Store    plans.Store
	Metrics  *metrics.Manager
}

type Generator struct {
	catalog      catalog
	injuries     *injuries.Holder
	lookup       exercisecatalog.Lookup
	materializer *plans.Materializer
	metrics      *metrics.Manager
}

func New(params Params) *Generator {
	lookup := params.Lookup
	if lookup == nil {
		lookup = exercisecatalog.Nop{}
	}
	holder := params.Injuries
	if holder == nil {
		holder = injuries.NewStaticHolder(injuries.New())
	}
	return &Generator{
		catalog:      params.Catalog,
		injuries:     holder,
		lookup:       lookup,
		materializer: plans.NewMaterializer(params.Store),
		metrics:      params.Metrics,
	}
}

func (g *Generator) Materializer() *plans.Materializer {
	return g.materializer
}

// Recommend returns the best template of the type, or nil.
func (g *Generator) Recommend(criteria intake.Criteria, typ templates.Type) *templates.Template {
	if typ == "" {
		typ = templates.TypeStarter
	}
	t := matcher.Match(g.catalog, criteria, typ)
	outcome := "found"
	if t == nil {
		outcome = "not_found"
	}
	g.metrics.CounterMatches.WithLabelValues(string(typ), outcome).Inc()
	return t
}

// RecommendForProfile picks the template type from the intake stage and
// subscription tier, then matches.
func (g *Generator) RecommendForProfile(profile intake.Profile) *templates.Template {
	typ := profile.TemplateType()
	t := g.Recommend(profile.Criteria(), typ)
	if t == nil {
		log.Warnf("generator: no template for profile with intake stage [%s] and type [%s]", profile.Stage, typ)
	}
	return t
}

// Generate matches a template for the request and materializes it.
func (g *Generator) Generate(ctx context.Context, req Request) (_ *Result, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "generator.generate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	typ := req.TemplateType
	if typ == "" {
		typ = templates.TypeStarter
	}
	t := g.Recommend(req.Criteria, typ)
	if t == nil {
		return nil, &matcher.NotFoundError{Type: typ, Criteria: req.Criteria}
	}
	span.SetAttributes(attribute.String("template.id", t.ID))

	return g.generate(ctx, t, req)
}

// GenerateFromTemplate materializes an explicitly chosen template.
func (g *Generator) GenerateFromTemplate(ctx context.Context, templateID string, req Request) (_ *Result, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "generator.generate_from_template")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("template.id", templateID))

	t, ok := g.catalog.GetByID(templateID)
	if !ok {
		return nil, fmt.Errorf("template [%s]: %w", templateID, ErrTemplateNotFound)
	}
	return g.generate(ctx, t, req)
}

// GenerateMultiple runs GenerateFromTemplate for each id in order. A failed
// template is reported in its entry and never stops the batch.
func (g *Generator) GenerateMultiple(ctx context.Context, req Request, templateIDs []string) []Result {
	results := make([]Result, 0, len(templateIDs))
	for _, id := range templateIDs {
		res, err := g.GenerateFromTemplate(ctx, id, req)
		if err != nil {
			log.Errorf("generator: generate plan from template [%s] for user [%s]: %s", id, req.UserID, err)
			results = append(results, Result{
				Success:    false,
				TemplateID: id,
				Criteria:   req.Criteria.Normalized(),
				Error:      err.Error(),
			})
			continue
		}
		res.TemplateID = id
		results = append(results, *res)
	}
	return results
}

// Preview prepares the plan the request would produce without persisting it.
func (g *Generator) Preview(ctx context.Context, req Request) (_ *Draft, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "generator.preview")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	typ := req.TemplateType
	if typ == "" {
		typ = templates.TypeStarter
	}
	t := g.Recommend(req.Criteria, typ)
	if t == nil {
		return nil, &matcher.NotFoundError{Type: typ, Criteria: req.Criteria}
	}
	return g.prepare(ctx, t, req)
}

// PreviewTemplate is Preview for an explicitly chosen template.
func (g *Generator) PreviewTemplate(ctx context.Context, templateID string, req Request) (*Draft, error) {
	t, ok := g.catalog.GetByID(templateID)
	if !ok {
		return nil, fmt.Errorf("template [%s]: %w", templateID, ErrTemplateNotFound)
	}
	return g.prepare(ctx, t, req)
}

func (g *Generator) generate(ctx context.Context, t *templates.Template, req Request) (*Result, error) {
	draft, err := g.prepare(ctx, t, req)
	if err != nil {
		return nil, err
	}

	warnings := make([]string, 0, len(draft.Warnings))
	for _, w := range draft.Warnings {
		warnings = append(warnings, w.Message)
	}

	started := time.Now()
	plan, err := g.materializer.Materialize(ctx, plans.Request{
		UserID:         req.UserID,
		CoachID:        req.CoachID,
		Template:       draft.Template,
		Criteria:       draft.Criteria,
		Sessions:       draft.Sessions,
		StartDate:      req.StartDate,
		Customizations: req.Customizations,
		Warnings:       warnings,
	})
	g.metrics.HistMaterializeDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		g.metrics.CounterPlansMaterialized.WithLabelValues("failure").Inc()
		return nil, err
	}
	g.metrics.CounterPlansMaterialized.WithLabelValues("success").Inc()

	log.Infof("generator: generated plan [%s] from template [%s] for user [%s]", plan.ID, draft.Template.ID, req.UserID)
	return &Result{
		Success:      true,
		Plan:         plan,
		TemplateUsed: draft.Template.ID,
		TemplateType: draft.Template.Type,
		Criteria:     draft.Criteria,
		Warnings:     draft.Warnings,
		Substituted:  draft.Substituted,
		FellBack:     draft.FellBack,
	}, nil
}

// prepare runs resolve, enrich, substitute and adjust in that order.
func (g *Generator) prepare(ctx context.Context, t *templates.Template, req Request) (_ *Draft, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "generator.prepare")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	criteria := req.Criteria.Normalized().WithDefaults()
	fellBack := false

	sessions, err := resolver.Resolve(t, criteria)
	if errors.Is(err, resolver.ErrUnsupportedCombination) && req.FallbackToStarter {
		starter := g.Recommend(criteria, templates.TypeStarter)
		if starter == nil {
			return nil, err
		}
		log.Warnf("generator: %s, falling back to starter template [%s]", err, starter.ID)
		t, fellBack = starter, true
		sessions, err = resolver.Resolve(t, criteria)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("template.id", t.ID),
		attribute.Bool("fell_back", fellBack),
	)

	library := t.ExerciseLibrary()
	sessions = resolver.Enrich(ctx, sessions, library, g.lookup)

	engine := substitution.NewEngine(g.injuries.Table(), g.lookup)
	res, err := engine.Apply(ctx, sessions, criteria.Injuries, substitution.Options{
		Available:     req.AvailableExercises,
		Library:       library,
		TemplateSwaps: t.InjurySwaps(),
	})
	if err != nil {
		return nil, fmt.Errorf("substitute: %w", err)
	}
	g.metrics.CounterSubstitutions.Add(float64(res.Substituted))
	for _, w := range res.Warnings {
		g.metrics.CounterSubstitutionWarns.WithLabelValues(string(w.Kind)).Inc()
	}

	adjusted := experience.Adjust(res.Sessions, t.ExperienceAdjustments(), criteria.ExperienceLevel)

	return &Draft{
		Template:    t,
		Criteria:    criteria,
		Sessions:    adjusted,
		Warnings:    res.Warnings,
		Substituted: res.Substituted,
		FellBack:    fellBack,
	}, nil
}
