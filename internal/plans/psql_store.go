package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2beens/fitplan/internal/telemetry/tracing"
	"github.com/2beens/fitplan/internal/templates"
	"github.com/2beens/fitplan/pkg"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type PsqlStore struct {
	db *pgxpool.Pool
}

func NewPsqlStore(db *pgxpool.Pool) *PsqlStore {
	return &PsqlStore{
		db: db,
	}
}

func (s *PsqlStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &psqlTx{tx: tx}, nil
}

const planColumns = `
	p.id, p.user_id, p.coach_id, p.template_id, p.template_type,
	p.name, p.name_ar, p.description, p.description_ar,
	p.goal, p.location, p.experience_level, p.duration_weeks, p.days_per_week,
	p.start_date, p.end_date, p.is_active, p.created_at,
	m.blocks, m.fitness_score_projection, m.routing_config, m.warnings
`

func scanPlan(row pgx.Row) (*Plan, error) {
	var (
		p                               Plan
		blocks, projection, routing, ws []byte
	)
	err := row.Scan(
		&p.ID, &p.UserID, &p.CoachID, &p.TemplateID, &p.TemplateType,
		&p.Name, &p.NameAR, &p.Description, &p.DescriptionAR,
		&p.Goal, &p.Location, &p.ExperienceLevel, &p.DurationWeeks, &p.DaysPerWeek,
		&p.StartDate, &p.EndDate, &p.IsActive, &p.CreatedAt,
		&blocks, &projection, &routing, &ws,
	)
	if err != nil {
		return nil, err
	}
	p.Metadata.Blocks = blocks
	p.Metadata.FitnessScoreProjection = projection
	p.Metadata.RoutingConfig = routing
	if len(ws) > 0 {
		if err := json.Unmarshal(ws, &p.Metadata.Warnings); err != nil {
			return nil, fmt.Errorf("plan warnings: %w", err)
		}
	}
	return &p, nil
}

func (s *PsqlStore) ActivePlan(ctx context.Context, userID string) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.active")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	p, err := scanPlan(s.db.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM workout_plans p
		LEFT JOIN workout_plan_metadata m ON m.plan_id = p.id
		WHERE p.user_id = $1 AND p.is_active
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active plan [query row]: %w", err)
	}

	if err := s.loadWeeks(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PsqlStore) ListPlans(ctx context.Context, userID string) (_ []Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", userID))

	rows, err := s.db.Query(ctx, `
		SELECT `+planColumns+`
		FROM workout_plans p
		LEFT JOIN workout_plan_metadata m ON m.plan_id = p.id
		WHERE p.user_id = $1
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans [query]: %w", err)
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("list plans [rows scan]: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans [rows error]: %w", err)
	}
	return out, nil
}

func (s *PsqlStore) GetPlan(ctx context.Context, planID uuid.UUID) (_ *Plan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.plans.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("plan.id", planID.String()))

	p, err := scanPlan(s.db.QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM workout_plans p
		LEFT JOIN workout_plan_metadata m ON m.plan_id = p.id
		WHERE p.id = $1
	`, planID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan [query row]: %w", err)
	}

	if err := s.loadWeeks(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// loadWeeks fills the graph below the plan header in week, day, order sequence.
func (s *PsqlStore) loadWeeks(ctx context.Context, p *Plan) error {
	weekRows, err := s.db.Query(ctx, `
		SELECT id, week_number
		FROM workout_weeks
		WHERE plan_id = $1
		ORDER BY week_number
	`, p.ID)
	if err != nil {
		return fmt.Errorf("plan weeks [query]: %w", err)
	}
	weekIdx := map[uuid.UUID]int{}
	for weekRows.Next() {
		w := Week{PlanID: p.ID}
		if err := weekRows.Scan(&w.ID, &w.Number); err != nil {
			weekRows.Close()
			return fmt.Errorf("plan weeks [rows scan]: %w", err)
		}
		weekIdx[w.ID] = len(p.Weeks)
		p.Weeks = append(p.Weeks, w)
	}
	weekRows.Close()
	if err := weekRows.Err(); err != nil {
		return fmt.Errorf("plan weeks [rows error]: %w", err)
	}

	dayRows, err := s.db.Query(ctx, `
		SELECT d.id, d.week_id, d.day_order, d.day_number, d.day_name, d.day_name_ar, d.focus, d.focus_ar,
		       c.type, c.type_ar, c.protocol, c.protocol_ar, c.intensity, c.target_heart_rate,
		       c.duration_min, c.machine_options
		FROM workout_days d
		JOIN workout_weeks w ON w.id = d.week_id
		LEFT JOIN workout_day_conditioning c ON c.day_id = d.id
		WHERE w.plan_id = $1
		ORDER BY w.week_number, d.day_order
	`, p.ID)
	if err != nil {
		return fmt.Errorf("plan days [query]: %w", err)
	}
	type dayPos struct{ week, day int }
	dayIdx := map[uuid.UUID]dayPos{}
	for dayRows.Next() {
		var (
			d                                Day
			cType, cTypeAR, cProto, cProtoAR *string
			cIntensity, cHeartRate           *string
			cDuration                        *int
			cMachines                        []byte
		)
		if err := dayRows.Scan(
			&d.ID, &d.WeekID, &d.Order, &d.Number, &d.Name, &d.NameAR, &d.Focus, &d.FocusAR,
			&cType, &cTypeAR, &cProto, &cProtoAR, &cIntensity, &cHeartRate,
			&cDuration, &cMachines,
		); err != nil {
			dayRows.Close()
			return fmt.Errorf("plan days [rows scan]: %w", err)
		}
		if cType != nil {
			d.Conditioning = &templates.Conditioning{
				Type:            *cType,
				TypeAR:          deref(cTypeAR),
				Protocol:        deref(cProto),
				ProtocolAR:      deref(cProtoAR),
				Intensity:       deref(cIntensity),
				TargetHeartRate: deref(cHeartRate),
			}
			if cDuration != nil {
				d.Conditioning.DurationMin = *cDuration
			}
			if len(cMachines) > 0 {
				if err := json.Unmarshal(cMachines, &d.Conditioning.MachineOptions); err != nil {
					dayRows.Close()
					return fmt.Errorf("plan days machine options: %w", err)
				}
			}
		}
		wi := weekIdx[d.WeekID]
		dayIdx[d.ID] = dayPos{week: wi, day: len(p.Weeks[wi].Days)}
		p.Weeks[wi].Days = append(p.Weeks[wi].Days, d)
	}
	dayRows.Close()
	if err := dayRows.Err(); err != nil {
		return fmt.Errorf("plan days [rows error]: %w", err)
	}

	exRows, err := s.db.Query(ctx, `
		SELECT e.id, e.day_id, e.exercise_order, e.exercise_id, e.name, e.name_ar,
		       e.sets, e.reps, e.rest_seconds, e.rpe, e.notes, e.notes_ar,
		       e.equipment, e.muscles, e.video_id,
		       e.was_substituted, e.original_exercise_id, e.substitution_reason, e.substitution_unsafe
		FROM workout_day_exercises e
		JOIN workout_days d ON d.id = e.day_id
		JOIN workout_weeks w ON w.id = d.week_id
		WHERE w.plan_id = $1
		ORDER BY w.week_number, d.day_order, e.exercise_order
	`, p.ID)
	if err != nil {
		return fmt.Errorf("plan exercises [query]: %w", err)
	}
	defer exRows.Close()
	for exRows.Next() {
		var (
			e                  ExerciseInstance
			equipment, muscles []byte
		)
		if err := exRows.Scan(
			&e.ID, &e.DayID, &e.Order, &e.ExerciseID, &e.Name, &e.NameAR,
			&e.Sets, &e.Reps, &e.RestSeconds, &e.Intensity, &e.Notes, &e.NotesAR,
			&equipment, &muscles, &e.VideoID,
			&e.WasSubstituted, &e.OriginalExerciseID, &e.SubstitutionReason, &e.SubstitutionUnsafe,
		); err != nil {
			return fmt.Errorf("plan exercises [rows scan]: %w", err)
		}
		if err := unmarshalList(equipment, &e.Equipment); err != nil {
			return fmt.Errorf("exercise equipment: %w", err)
		}
		if err := unmarshalList(muscles, &e.Muscles); err != nil {
			return fmt.Errorf("exercise muscles: %w", err)
		}
		pos := dayIdx[e.DayID]
		d := &p.Weeks[pos.week].Days[pos.day]
		d.Exercises = append(d.Exercises, e)
	}
	if err := exRows.Err(); err != nil {
		return fmt.Errorf("plan exercises [rows error]: %w", err)
	}

	return nil
}

type psqlTx struct {
	tx         pgx.Tx
	lockedUser string
}

func (t *psqlTx) LockUser(ctx context.Context, userID string) error {
	if t.lockedUser != "" && t.lockedUser != userID {
		return fmt.Errorf("lock user [%s]: %w [%s]", userID, ErrOtherUserLocked, t.lockedUser)
	}
	// the row lock on plan_owner lives until the tx ends
	_, err := t.tx.Exec(ctx, `
		INSERT INTO plan_owner (user_id, locked_at)
		VALUES ($1, now())
		ON CONFLICT (user_id) DO UPDATE SET locked_at = EXCLUDED.locked_at
	`, userID)
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxDone
	}
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	t.lockedUser = userID
	return nil
}

func (t *psqlTx) DeactivateActive(ctx context.Context, userID string) (int64, error) {
	if t.lockedUser != userID {
		return 0, ErrUserLockNotHeld
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE workout_plans
		SET is_active = FALSE
		WHERE user_id = $1 AND is_active
	`, userID)
	if err != nil {
		return 0, t.mapErr("deactivate active plans", err)
	}
	return tag.RowsAffected(), nil
}

func (t *psqlTx) InsertPlan(ctx context.Context, plan *Plan) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO workout_plans (
			id, user_id, coach_id, template_id, template_type,
			name, name_ar, description, description_ar,
			goal, location, experience_level, duration_weeks, days_per_week,
			start_date, end_date, is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		plan.ID, plan.UserID, plan.CoachID, plan.TemplateID, plan.TemplateType,
		plan.Name, plan.NameAR, plan.Description, plan.DescriptionAR,
		plan.Goal, plan.Location, plan.ExperienceLevel, plan.DurationWeeks, plan.DaysPerWeek,
		plan.StartDate, plan.EndDate, plan.IsActive, plan.CreatedAt,
	)
	if err != nil {
		return t.mapErr("insert plan", err)
	}

	warnings, err := json.Marshal(plan.Metadata.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO workout_plan_metadata (plan_id, blocks, fitness_score_projection, routing_config, warnings)
		VALUES ($1, $2, $3, $4, $5)
	`,
		plan.ID,
		nullJSON(plan.Metadata.Blocks),
		nullJSON(plan.Metadata.FitnessScoreProjection),
		nullJSON(plan.Metadata.RoutingConfig),
		warnings,
	)
	if err != nil {
		return t.mapErr("insert plan metadata", err)
	}
	return nil
}

func (t *psqlTx) InsertWeek(ctx context.Context, week *Week) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO workout_weeks (id, plan_id, week_number)
		VALUES ($1, $2, $3)
	`, week.ID, week.PlanID, week.Number)
	if err != nil {
		return t.mapErr("insert week", err)
	}
	return nil
}

func (t *psqlTx) InsertDay(ctx context.Context, day *Day) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO workout_days (id, week_id, day_order, day_number, day_name, day_name_ar, focus, focus_ar)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, day.ID, day.WeekID, day.Order, day.Number, day.Name, day.NameAR, day.Focus, day.FocusAR)
	if err != nil {
		return t.mapErr("insert day", err)
	}
	if day.Conditioning == nil {
		return nil
	}

	c := day.Conditioning
	machines, err := json.Marshal(c.MachineOptions)
	if err != nil {
		return fmt.Errorf("marshal machine options: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO workout_day_conditioning (
			day_id, type, type_ar, protocol, protocol_ar, intensity, target_heart_rate, duration_min, machine_options
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, day.ID, c.Type, c.TypeAR, c.Protocol, c.ProtocolAR, c.Intensity, c.TargetHeartRate, c.DurationMin, machines)
	if err != nil {
		return t.mapErr("insert conditioning", err)
	}
	return nil
}

func (t *psqlTx) InsertExercise(ctx context.Context, e *ExerciseInstance) error {
	equipment, err := json.Marshal(nonNil(e.Equipment))
	if err != nil {
		return fmt.Errorf("marshal equipment: %w", err)
	}
	muscles, err := json.Marshal(nonNil(e.Muscles))
	if err != nil {
		return fmt.Errorf("marshal muscles: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO workout_day_exercises (
			id, day_id, exercise_order, exercise_id, name, name_ar,
			sets, reps, rest_seconds, rpe, notes, notes_ar,
			equipment, muscles, video_id,
			was_substituted, original_exercise_id, substitution_reason, substitution_unsafe
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`,
		e.ID, e.DayID, e.Order, e.ExerciseID, e.Name, e.NameAR,
		e.Sets, e.Reps, e.RestSeconds, e.Intensity, e.Notes, e.NotesAR,
		equipment, muscles, e.VideoID,
		e.WasSubstituted, e.OriginalExerciseID, e.SubstitutionReason, e.SubstitutionUnsafe,
	)
	if err != nil {
		return t.mapErr("insert exercise", err)
	}
	return nil
}

func (t *psqlTx) Commit(ctx context.Context) error {
	err := t.tx.Commit(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxDone
	}
	if err != nil {
		return t.mapErr("commit", err)
	}
	return nil
}

func (t *psqlTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxDone
	}
	return err
}

const oneActivePlanIndex = "ux_workout_plans_one_active"

func (t *psqlTx) mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrTxClosed) {
		return ErrTxDone
	}
	if pkg.IsUniqueViolationError(err) && pkg.ConstraintName(err) == oneActivePlanIndex {
		return fmt.Errorf("%s: %w: %w", op, ErrActivePlanExists, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func unmarshalList(b []byte, out *[]string) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, out)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
