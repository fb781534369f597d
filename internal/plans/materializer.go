package plans

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/fitplan/internal/intake"
	"github.com/2beens/fitplan/internal/telemetry/tracing"
	"github.com/2beens/fitplan/internal/templates"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultRestSeconds = 90
	daysPerWeek        = 7
)

type Customizations struct {
	Name            string `json:"name,omitempty"`
	NameAR          string `json:"nameAr,omitempty"`
	Description     string `json:"description,omitempty"`
	DescriptionAR   string `json:"descriptionAr,omitempty"`
	IncludeUserName bool   `json:"includeUserName,omitempty"`
	UserName        string `json:"userName,omitempty"`
	UserNameAR      string `json:"userNameAr,omitempty"`
}

type Request struct {
	UserID   string
	CoachID  string
	Template *templates.Template
	// Criteria must already be normalized; it is stored as given.
	Criteria intake.Criteria
	// Sessions are the final, adjusted sessions of the plan.
	Sessions       []templates.Session
	StartDate      time.Time
	Customizations Customizations
	Warnings       []string
}

type Materializer struct {
	store Store
	now   func() time.Time
}

func NewMaterializer(store Store) *Materializer {
	return &Materializer{
		store: store,
		now:   time.Now,
	}
}

// WithClock replaces the clock used for created-at and default start dates.
func (m *Materializer) WithClock(now func() time.Time) *Materializer {
	m.now = now
	return m
}

func (m *Materializer) Store() Store {
	return m.store
}

// Build assembles the plan graph without persisting it.
func (m *Materializer) Build(req Request) (*Plan, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidRequest)
	}
	if req.Template == nil {
		return nil, fmt.Errorf("%w: missing template", ErrInvalidRequest)
	}
	t := req.Template
	if t.DurationWeeks < 1 {
		return nil, fmt.Errorf("%w: template [%s] has no weeks", ErrInvalidRequest, t.ID)
	}

	now := m.now().UTC()
	start := req.StartDate
	if start.IsZero() {
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	plan := &Plan{
		ID:              uuid.New(),
		UserID:          req.UserID,
		CoachID:         req.CoachID,
		TemplateID:      t.ID,
		TemplateType:    t.Type,
		Goal:            req.Criteria.Goal,
		Location:        req.Criteria.Location,
		ExperienceLevel: req.Criteria.ExperienceLevel,
		DurationWeeks:   t.DurationWeeks,
		DaysPerWeek:     t.TrainingDays,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, t.DurationWeeks*daysPerWeek),
		IsActive:        true,
		Metadata: Metadata{
			Blocks:                 t.Blocks,
			FitnessScoreProjection: t.FitnessScoreProjection(req.Criteria.ExperienceLevel),
			RoutingConfig:          t.Metadata,
			Warnings:               req.Warnings,
		},
		CreatedAt: now,
	}
	if plan.Goal == "" {
		plan.Goal = t.Goal
	}
	if plan.Location == "" {
		plan.Location = t.Location
	}
	applyNaming(plan, t, req.Customizations)

	for n := 1; n <= t.DurationWeeks; n++ {
		week := Week{
			ID:     uuid.New(),
			PlanID: plan.ID,
			Number: n,
		}
		for _, s := range req.Sessions {
			if s.Week != 0 && s.Week != n {
				continue
			}
			week.Days = append(week.Days, buildDay(week.ID, len(week.Days)+1, s))
		}
		plan.Weeks = append(plan.Weeks, week)
	}

	return plan, nil
}

func applyNaming(plan *Plan, t *templates.Template, c Customizations) {
	plan.Name = firstNonEmpty(c.Name, t.Name)
	plan.NameAR = firstNonEmpty(c.NameAR, t.NameAR, plan.Name)
	plan.Description = firstNonEmpty(c.Description, t.Description)
	plan.DescriptionAR = firstNonEmpty(c.DescriptionAR, t.DescriptionAR, plan.Description)

	// the user name suffix always goes on the template name, not an override
	if c.IncludeUserName && c.UserName != "" {
		plan.Name = fmt.Sprintf("%s - %s", t.Name, c.UserName)
		plan.NameAR = fmt.Sprintf("%s - %s", firstNonEmpty(t.NameAR, t.Name), firstNonEmpty(c.UserNameAR, c.UserName))
	}
}

func buildDay(weekID uuid.UUID, order int, s templates.Session) Day {
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("Day %d", s.Day)
	}
	day := Day{
		ID:     uuid.New(),
		WeekID: weekID,
		Order:  order,
		Number: s.Day,
		Name:   name,
		NameAR: firstNonEmpty(s.NameAR, name),
		Focus:  name,
	}
	day.FocusAR = day.NameAR

	if c := s.Conditioning.Clone(); c != nil {
		c.TypeAR = firstNonEmpty(c.TypeAR, c.Type)
		c.ProtocolAR = firstNonEmpty(c.ProtocolAR, c.Protocol)
		day.Conditioning = c
	}

	for i, a := range s.Work {
		day.Exercises = append(day.Exercises, buildInstance(day.ID, i+1, a))
	}
	return day
}

func buildInstance(dayID uuid.UUID, order int, a templates.ExerciseAssignment) ExerciseInstance {
	a = a.Clone()
	e := ExerciseInstance{
		ID:                 uuid.New(),
		DayID:              dayID,
		Order:              order,
		ExerciseID:         a.ExerciseID,
		Name:               firstNonEmpty(a.Name, a.ExerciseID),
		Sets:               a.Sets,
		Reps:               a.Reps,
		RestSeconds:        a.RestSeconds,
		Intensity:          a.Intensity,
		Notes:              a.Notes,
		NotesAR:            firstNonEmpty(a.NotesAR, a.Notes),
		Equipment:          a.Equipment,
		Muscles:            a.Muscles,
		VideoID:            a.VideoID,
		WasSubstituted:     a.WasSubstituted,
		SubstitutionReason: a.SubstitutionReason,
		SubstitutionUnsafe: a.SubstitutionUnsafe,
	}
	e.NameAR = firstNonEmpty(a.NameAR, e.Name)
	if e.RestSeconds <= 0 {
		e.RestSeconds = DefaultRestSeconds
	}
	if a.WasSubstituted && a.Original != nil {
		e.OriginalExerciseID = a.Original.ExerciseID
	}
	return e
}

// Materialize persists the plan graph in one transaction. The user's previous
// active plan is deactivated in the same transaction.
func (m *Materializer) Materialize(ctx context.Context, req Request) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "plans.materialize")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	plan, err := m.Build(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("user.id", plan.UserID),
		attribute.String("template.id", plan.TemplateID),
		attribute.Int("plan.weeks", len(plan.Weeks)),
		attribute.Int("plan.exercises", plan.ExerciseCount()),
	)

	if err := ctx.Err(); err != nil {
		return nil, m.persistenceErr(plan, OpBegin, err)
	}

	tx, err := m.store.Begin(ctx)
	if err != nil {
		return nil, m.persistenceErr(plan, OpBegin, err)
	}

	deactivated, op, err := m.write(ctx, tx, plan)
	if err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, ErrTxDone) {
			err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
		}
		return nil, m.persistenceErr(plan, op, err)
	}

	log.Infof("plans: materialized plan [%s] for user [%s] from template [%s], deactivated %d",
		plan.ID, plan.UserID, plan.TemplateID, deactivated)
	return plan, nil
}

func (m *Materializer) write(ctx context.Context, tx Tx, plan *Plan) (int64, string, error) {
	if err := tx.LockUser(ctx, plan.UserID); err != nil {
		return 0, OpLockUser, err
	}
	deactivated, err := tx.DeactivateActive(ctx, plan.UserID)
	if err != nil {
		return 0, OpDeactivate, err
	}
	if err := tx.InsertPlan(ctx, plan); err != nil {
		return 0, OpInsertPlan, err
	}
	for wi := range plan.Weeks {
		week := &plan.Weeks[wi]
		if err := tx.InsertWeek(ctx, week); err != nil {
			return 0, OpInsertWeek, err
		}
		for di := range week.Days {
			day := &week.Days[di]
			if err := tx.InsertDay(ctx, day); err != nil {
				return 0, OpInsertDay, err
			}
			for ei := range day.Exercises {
				if err := tx.InsertExercise(ctx, &day.Exercises[ei]); err != nil {
					return 0, OpInsertExercise, err
				}
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, OpCommit, err
	}
	return deactivated, "", nil
}

func (m *Materializer) persistenceErr(plan *Plan, op string, err error) error {
	log.Errorf("plans: persist plan for user [%s] failed at [%s]: %s", plan.UserID, op, err)
	return &PersistenceError{
		UserID:     plan.UserID,
		TemplateID: plan.TemplateID,
		Op:         op,
		Err:        err,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
