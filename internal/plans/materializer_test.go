package plans_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/2beens/fitplan/internal/intake"
	"github.com/2beens/fitplan/internal/plans"
	"github.com/2beens/fitplan/internal/resolver"
	"github.com/2beens/fitplan/internal/templates"
	"github.com/2beens/fitplan/internal/testinternals"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

var (
	start    = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
)

func starterRequest(t *testing.T, userID string) plans.Request {
	t.Helper()
	internals := testinternals.NewTestingInternals()
	t.Cleanup(internals.Close)

	tmpl, ok := internals.Catalog.GetByID(testinternals.StarterFatLossGymID)
	require.True(t, ok)
	criteria := intake.Criteria{Goal: "fat_loss", Location: "gym", TrainingDaysAvailable: 3, ExperienceLevel: "beginner"}
	sessions, err := resolver.Resolve(tmpl, criteria)
	require.NoError(t, err)

	return plans.Request{
		UserID:    userID,
		Template:  tmpl,
		Criteria:  criteria,
		Sessions:  sessions,
		StartDate: start,
	}
}

func TestMaterialize_StarterGraph(t *testing.T) {
	store := plans.NewMemStore()
	m := plans.NewMaterializer(store).WithClock(fixedNow)

	plan, err := m.Materialize(context.Background(), starterRequest(t, "user-1"))
	require.NoError(t, err)
	require.NotNil(t, plan)

	assert.Equal(t, testinternals.StarterFatLossGymID, plan.TemplateID)
	assert.Equal(t, templates.TypeStarter, plan.TemplateType)
	assert.Equal(t, start.AddDate(0, 0, 28), plan.EndDate)
	assert.Equal(t, fixedNow().UTC(), plan.CreatedAt)
	assert.True(t, plan.IsActive)
	assert.Equal(t, 4, plan.DurationWeeks)
	assert.Equal(t, 3, plan.DaysPerWeek)
	assert.JSONEq(t, `{"min": 2, "max": 4}`, string(plan.Metadata.FitnessScoreProjection))
	assert.NotEmpty(t, plan.Metadata.Blocks)

	require.Len(t, plan.Weeks, 4)
	for i, w := range plan.Weeks {
		assert.Equal(t, i+1, w.Number)
		assert.Equal(t, plan.ID, w.PlanID)
		require.Len(t, w.Days, 3)
	}
	assert.Equal(t, 4*6, plan.ExerciseCount())

	day1 := plan.Weeks[0].Days[0]
	assert.Equal(t, 1, day1.Number)
	assert.Equal(t, "Full Body A", day1.Name)
	assert.Equal(t, "Full Body A", day1.NameAR)
	assert.Equal(t, "Full Body A", day1.Focus)
	require.NotNil(t, day1.Conditioning)
	assert.Equal(t, "intervals", day1.Conditioning.Type)
	assert.Equal(t, "intervals", day1.Conditioning.TypeAR)
	assert.Equal(t, "30s on / 30s off", day1.Conditioning.ProtocolAR)
	assert.Equal(t, []string{"bike", "rower"}, day1.Conditioning.MachineOptions)
	assert.Nil(t, plan.Weeks[0].Days[1].Conditioning)

	require.Len(t, day1.Exercises, 2)
	squat, pushUp := day1.Exercises[0], day1.Exercises[1]
	assert.Equal(t, 1, squat.Order)
	assert.Equal(t, 2, pushUp.Order)
	assert.Equal(t, day1.ID, squat.DayID)
	assert.Equal(t, 60, squat.RestSeconds)
	assert.Equal(t, plans.DefaultRestSeconds, pushUp.RestSeconds)
	assert.Equal(t, "10", pushUp.Reps)
	assert.Equal(t, "Goblet Squat", squat.NameAR)
	require.NotNil(t, squat.Intensity)
	assert.InDelta(t, 7.0, *squat.Intensity, 0.0001)
	assert.Nil(t, pushUp.Intensity)

	// fresh ids everywhere
	seen := map[string]bool{plan.ID.String(): true}
	for _, w := range plan.Weeks {
		require.False(t, seen[w.ID.String()])
		seen[w.ID.String()] = true
		for _, d := range w.Days {
			require.False(t, seen[d.ID.String()])
			seen[d.ID.String()] = true
			for _, e := range d.Exercises {
				require.False(t, seen[e.ID.String()])
				seen[e.ID.String()] = true
			}
		}
	}

	stored, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, plan, stored)
}

func TestMaterialize_WeekSpecificSessions(t *testing.T) {
	internals := testinternals.NewTestingInternals()
	t.Cleanup(internals.Close)

	tmpl, ok := internals.Catalog.GetByID(testinternals.AdvancedGymID)
	require.True(t, ok)
	criteria := intake.Criteria{Goal: "fat_loss", Location: "gym", TrainingDaysAvailable: 3, ExperienceLevel: "beginner"}
	sessions, err := resolver.Resolve(tmpl, criteria)
	require.NoError(t, err)

	plan, err := plans.NewMaterializer(plans.NewMemStore()).Materialize(context.Background(), plans.Request{
		UserID:    "user-1",
		Template:  tmpl,
		Criteria:  criteria,
		Sessions:  sessions,
		StartDate: start,
	})
	require.NoError(t, err)

	require.Len(t, plan.Weeks, 4)
	for _, w := range plan.Weeks[:3] {
		assert.Len(t, w.Days, 2, "week %d", w.Number)
	}
	require.Len(t, plan.Weeks[3].Days, 3)
	assert.Equal(t, 3, plan.Weeks[3].Days[2].Number)
	assert.JSONEq(t, `{"week_4": 12}`, string(plan.Metadata.FitnessScoreProjection))
}

func TestMaterialize_SameDayNumberKeepsSessionOrder(t *testing.T) {
	req := starterRequest(t, "user-1")
	require.GreaterOrEqual(t, len(req.Sessions), 2)
	req.Sessions[0].Name, req.Sessions[1].Name = "Morning", "Evening"
	req.Sessions[1].Day = req.Sessions[0].Day

	store := plans.NewMemStore()
	plan, err := plans.NewMaterializer(store).Materialize(context.Background(), req)
	require.NoError(t, err)

	for _, w := range plan.Weeks {
		for i, d := range w.Days {
			assert.Equal(t, i+1, d.Order, "week %d", w.Number)
		}
		assert.Equal(t, "Morning", w.Days[0].Name)
		assert.Equal(t, "Evening", w.Days[1].Name)
		assert.Equal(t, w.Days[0].Number, w.Days[1].Number)
	}

	stored, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Evening", stored.Weeks[0].Days[1].Name)
}

func TestMaterialize_Customizations(t *testing.T) {
	m := plans.NewMaterializer(plans.NewMemStore())

	req := starterRequest(t, "user-1")
	plan, err := m.Materialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Starter Fat Loss (Gym, 3 days)", plan.Name)
	assert.Equal(t, "برنامج حرق الدهون", plan.NameAR)
	assert.Equal(t, "Full body circuits for beginners", plan.DescriptionAR)

	req.Customizations = plans.Customizations{
		Description:     "Coach notes",
		IncludeUserName: true,
		UserName:        "Sam Doe",
	}
	plan, err = m.Materialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Starter Fat Loss (Gym, 3 days) - Sam Doe", plan.Name)
	assert.Equal(t, "برنامج حرق الدهون - Sam Doe", plan.NameAR)
	assert.Equal(t, "Coach notes", plan.Description)

	req.Customizations = plans.Customizations{Name: "Summer Cut", NameAR: "تنشيف"}
	plan, err = m.Materialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Summer Cut", plan.Name)
	assert.Equal(t, "تنشيف", plan.NameAR)
}

func TestMaterialize_SubstitutionFields(t *testing.T) {
	req := starterRequest(t, "user-1")
	a := &req.Sessions[2].Work[1]
	a.Original = &templates.ExerciseIdentity{ExerciseID: a.ExerciseID, Name: a.Name}
	a.ExerciseID = "chest_press_machine"
	a.Name = "Chest Press Machine"
	a.WasSubstituted = true
	a.SubstitutionReason = `matched "overhead" for Shoulder injury`

	plan, err := plans.NewMaterializer(plans.NewMemStore()).Materialize(context.Background(), req)
	require.NoError(t, err)

	e := plan.Weeks[1].Days[2].Exercises[1]
	assert.Equal(t, "chest_press_machine", e.ExerciseID)
	assert.True(t, e.WasSubstituted)
	assert.Equal(t, "overhead_press", e.OriginalExerciseID)
	assert.Contains(t, e.SubstitutionReason, "overhead")
	assert.Empty(t, plan.Weeks[1].Days[2].Exercises[0].OriginalExerciseID)
}

func TestMaterialize_DeactivatesPreviousPlan(t *testing.T) {
	ctx := context.Background()
	store := plans.NewMemStore()
	clock := fixedNow()
	m := plans.NewMaterializer(store).WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	})

	first, err := m.Materialize(ctx, starterRequest(t, "user-1"))
	require.NoError(t, err)
	second, err := m.Materialize(ctx, starterRequest(t, "user-1"))
	require.NoError(t, err)
	other, err := m.Materialize(ctx, starterRequest(t, "user-2"))
	require.NoError(t, err)

	active, err := store.ActivePlan(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	history, err := store.ListPlans(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.True(t, history[0].IsActive)
	assert.Equal(t, first.ID, history[1].ID)
	assert.False(t, history[1].IsActive)
	assert.Empty(t, history[0].Weeks)

	active, err = store.ActivePlan(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, other.ID, active.ID)

	_, err = store.ActivePlan(ctx, "nobody")
	assert.ErrorIs(t, err, plans.ErrPlanNotFound)
}

func TestMaterialize_AtomicOnFailure(t *testing.T) {
	ctx := context.Background()
	store := plans.NewMemStore()
	m := plans.NewMaterializer(store)

	existing, err := m.Materialize(ctx, starterRequest(t, "user-1"))
	require.NoError(t, err)

	boom := errors.New("connection reset")
	testCases := []struct {
		op    string
		after int
	}{
		// second exercise of the first day
		{op: plans.OpInsertExercise, after: 1},
		{op: plans.OpInsertExercise, after: 13},
		{op: plans.OpInsertDay, after: 5},
		{op: plans.OpInsertWeek, after: 0},
		{op: plans.OpInsertPlan, after: 0},
		{op: plans.OpDeactivate, after: 0},
		{op: plans.OpLockUser, after: 0},
		{op: plans.OpCommit, after: 0},
		{op: plans.OpBegin, after: 0},
	}
	for _, tc := range testCases {
		t.Run(tc.op, func(t *testing.T) {
			store.ClearFailures()
			store.FailAfter(tc.op, tc.after, boom)

			plan, err := m.Materialize(ctx, starterRequest(t, "user-1"))
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.True(t, errors.Is(err, plans.ErrPersistence))
			assert.True(t, errors.Is(err, boom))

			var perr *plans.PersistenceError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tc.op, perr.Op)
			assert.Equal(t, "user-1", perr.UserID)
			assert.Equal(t, testinternals.StarterFatLossGymID, perr.TemplateID)

			history, err := store.ListPlans(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, history, 1)
			active, err := store.ActivePlan(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, existing.ID, active.ID)
			assert.Equal(t, existing.ExerciseCount(), active.ExerciseCount())
		})
	}

	// the user lock was released by every failed run
	store.ClearFailures()
	req := starterRequest(t, "user-1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.Materialize(ctx, req)
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("materialize blocked on a leaked user lock")
	}
}

func TestMaterialize_ConcurrentRunsKeepOneActivePlan(t *testing.T) {
	ctx := context.Background()
	store := plans.NewMemStore()
	m := plans.NewMaterializer(store)

	const runs = 12
	reqs := make([]plans.Request, runs)
	for i := range reqs {
		reqs[i] = starterRequest(t, "user-1")
	}

	var wg sync.WaitGroup
	errs := make(chan error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(req plans.Request) {
			defer wg.Done()
			_, err := m.Materialize(ctx, req)
			errs <- err
		}(reqs[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := store.ListPlans(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, history, runs)
	active := 0
	for _, p := range history {
		if p.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestMaterialize_InvalidRequest(t *testing.T) {
	m := plans.NewMaterializer(plans.NewMemStore())
	valid := starterRequest(t, "user-1")

	noUser := valid
	noUser.UserID = ""
	noTemplate := valid
	noTemplate.Template = nil
	noWeeks := valid
	tmpl := *valid.Template
	tmpl.DurationWeeks = 0
	noWeeks.Template = &tmpl

	for name, req := range map[string]plans.Request{
		"no user":     noUser,
		"no template": noTemplate,
		"no weeks":    noWeeks,
	} {
		_, err := m.Materialize(context.Background(), req)
		assert.ErrorIs(t, err, plans.ErrInvalidRequest, name)
		assert.False(t, errors.Is(err, plans.ErrPersistence), name)
	}
}

func TestMaterialize_CancelledContext(t *testing.T) {
	store := plans.NewMemStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := plans.NewMaterializer(store).Materialize(ctx, starterRequest(t, "user-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, plans.ErrPersistence)
	assert.Equal(t, 0, store.Calls(plans.OpBegin))
}

func TestMaterialize_DefaultStartDate(t *testing.T) {
	req := starterRequest(t, "user-1")
	req.StartDate = time.Time{}

	plan, err := plans.NewMaterializer(plans.NewMemStore()).WithClock(fixedNow).Materialize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), plan.StartDate)
	assert.Equal(t, time.Date(2026, 3, 29, 0, 0, 0, 0, time.UTC), plan.EndDate)
}
