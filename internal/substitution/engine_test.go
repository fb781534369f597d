package substitution_test

import (
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	"github.com/2beens/fitplan/internal/exercisecatalog"
	"github.com/2beens/fitplan/internal/injuries"
	"github.com/2beens/fitplan/internal/substitution"
	"github.com/2beens/fitplan/internal/templates"
	"github.com/2beens/fitplan/internal/testinternals"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
	)
}

func newInternals(t *testing.T) *testinternals.Internals {
	t.Helper()
	internals := testinternals.NewTestingInternals()
	t.Cleanup(internals.Close)
	return internals
}

func pushDay() []templates.Session {
	return []templates.Session{
		{
			Day:  1,
			Name: "Push",
			Work: []templates.ExerciseAssignment{
				{
					ExerciseID:  "overhead_press",
					Name:        "Overhead Press",
					Sets:        4,
					Reps:        "8-10",
					RestSeconds: 120,
					Intensity:   testinternals.Ptr(7.0),
					Notes:       "brace",
					Equipment:   []string{"barbell"},
				},
				{ExerciseID: "lat_pulldown", Name: "Lat Pulldown", Sets: 3, Reps: "12"},
			},
		},
		{
			Day:  2,
			Name: "Legs",
			Work: []templates.ExerciseAssignment{
				{ExerciseID: "leg_press", Name: "Leg Press", Sets: 3, Reps: "12"},
			},
		},
	}
}

var library = map[string]templates.ExerciseDef{
	"chest_press_machine": {ID: "chest_press_machine", Name: "Chest Press Machine", Equipment: []string{"machine"}, VideoID: "vid-cpm"},
}

func TestApply_ShoulderSwap(t *testing.T) {
	internals := newInternals(t)
	engine := substitution.NewEngine(internals.Injuries, internals.Exercises)

	in := pushDay()
	res, err := engine.Apply(context.Background(), in, []string{"shoulder"}, substitution.Options{Library: library})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Substituted)

	got := res.Sessions[0].Work[0]
	assert.Equal(t, "chest_press_machine", got.ExerciseID)
	assert.Equal(t, "Chest Press Machine", got.Name)
	assert.Equal(t, []string{"machine"}, got.Equipment)
	assert.Equal(t, "vid-cpm", got.VideoID)
	assert.True(t, got.WasSubstituted)
	assert.False(t, got.SubstitutionUnsafe)
	assert.Equal(t, "shoulder", got.SubstitutionInjury)
	assert.Contains(t, got.SubstitutionReason, `"overhead"`)
	assert.Contains(t, got.SubstitutionReason, "Shoulder injury")
	require.NotNil(t, got.Original)
	assert.Equal(t, "overhead_press", got.Original.ExerciseID)
	assert.Equal(t, []string{"barbell"}, got.Original.Equipment)

	// prescription carried over
	assert.Equal(t, 4, got.Sets)
	assert.Equal(t, "8-10", got.Reps)
	assert.Equal(t, 120, got.RestSeconds)
	require.NotNil(t, got.Intensity)
	assert.InDelta(t, 7.0, *got.Intensity, 0.0001)
	assert.Equal(t, "brace", got.Notes)

	// untouched exercises and input
	assert.Equal(t, in[0].Work[1], res.Sessions[0].Work[1])
	assert.Equal(t, in[1], res.Sessions[1])
	assert.Equal(t, "overhead_press", in[0].Work[0].ExerciseID)
	assert.False(t, in[0].Work[0].WasSubstituted)
}

func TestApply_TemplateSwapsComeFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	lookup := NewMockexerciseLookup(ctrl)
	lookup.EXPECT().
		GetByID(gomock.Any(), "seated_leg_curl").
		Return(&exercisecatalog.Exercise{ID: "seated_leg_curl", Name: "Seated Leg Curl"}, nil).
		Times(1)

	internals := newInternals(t)
	engine := substitution.NewEngine(internals.Injuries, lookup)

	res, err := engine.Apply(context.Background(), pushDay(), []string{"knee"}, substitution.Options{
		TemplateSwaps: map[string]map[string][]string{
			"knee": {"leg_press": {"seated_leg_curl", "hamstring_curl"}},
		},
	})
	require.NoError(t, err)
	got := res.Sessions[1].Work[0]
	assert.Equal(t, "seated_leg_curl", got.ExerciseID)
	assert.Equal(t, "Seated Leg Curl", got.Name)
	assert.Equal(t, "leg_press", got.Original.ExerciseID)
}

func TestApply_AvailableRestrictsCandidates(t *testing.T) {
	internals := newInternals(t)
	engine := substitution.NewEngine(internals.Injuries, internals.Exercises)

	res, err := engine.Apply(context.Background(), pushDay(), []string{"shoulder"}, substitution.Options{
		Available: []string{"lateral_raise_cable", "lat_pulldown"},
	})
	require.NoError(t, err)
	got := res.Sessions[0].Work[0]
	assert.Equal(t, "lateral_raise_cable", got.ExerciseID)
	assert.Equal(t, "Cable Lateral Raise", got.Name)

	res, err = engine.Apply(context.Background(), pushDay(), []string{"shoulder"}, substitution.Options{
		Available: []string{"lat_pulldown"},
	})
	require.NoError(t, err)
	got = res.Sessions[0].Work[0]
	assert.Equal(t, "overhead_press", got.ExerciseID)
	assert.False(t, got.WasSubstituted)
	require.Len(t, res.Warnings, 1)
	w := res.Warnings[0]
	assert.Equal(t, substitution.WarningNoSubstitute, w.Kind)
	assert.Equal(t, "overhead_press", w.ExerciseID)
	assert.Equal(t, 1, w.Day)
	assert.Equal(t, "shoulder", w.Injury)
	assert.Equal(t, []string{"shoulder"}, w.Injuries)
}

func TestApply_UnsafeFallback(t *testing.T) {
	table := injuries.New(injuries.Entry{
		Code:                  "wrist",
		Description:           "Wrist pain",
		AvoidKeywords:         []string{"press", "curl"},
		SubstituteExerciseIDs: []string{"hamstring_curl", "leg_press_machine"},
	})
	internals := newInternals(t)
	engine := substitution.NewEngine(table, internals.Exercises)

	res, err := engine.Apply(context.Background(), pushDay(), []string{"wrist"}, substitution.Options{})
	require.NoError(t, err)

	got := res.Sessions[0].Work[0]
	assert.Equal(t, "hamstring_curl", got.ExerciseID)
	assert.True(t, got.WasSubstituted)
	assert.True(t, got.SubstitutionUnsafe)

	require.Len(t, res.Warnings, 2)
	for _, w := range res.Warnings {
		assert.Equal(t, substitution.WarningUnsafeFallback, w.Kind)
		assert.Equal(t, "hamstring_curl", w.Substitute)
	}
	assert.Equal(t, "overhead_press", res.Warnings[0].ExerciseID)
	assert.Equal(t, "leg_press", res.Warnings[1].ExerciseID)
	assert.Equal(t, 2, res.Warnings[1].Day)
}

func TestApply_NoSubstituteKnown(t *testing.T) {
	table := injuries.New(injuries.Entry{Code: "elbow", AvoidKeywords: []string{"pulldown"}})
	engine := substitution.NewEngine(table, nil)

	res, err := engine.Apply(context.Background(), pushDay(), []string{"elbow"}, substitution.Options{})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, substitution.WarningNoSubstitute, res.Warnings[0].Kind)
	assert.Equal(t, "lat_pulldown", res.Sessions[0].Work[1].ExerciseID)
}

func TestApply_FixedPoint(t *testing.T) {
	internals := newInternals(t)
	engine := substitution.NewEngine(internals.Injuries, internals.Exercises)
	ctx := context.Background()
	opts := substitution.Options{Library: library}
	codes := []string{"shoulder", "knee"}

	first, err := engine.Apply(ctx, pushDay(), codes, opts)
	require.NoError(t, err)
	second, err := engine.Apply(ctx, first.Sessions, codes, opts)
	require.NoError(t, err)

	assert.Equal(t, first.Sessions, second.Sessions)
	assert.Equal(t, first.Warnings, second.Warnings)
	assert.Zero(t, second.Restored)

	// the substitute is never itself substituted again
	assert.Equal(t, "overhead_press", second.Sessions[0].Work[0].Original.ExerciseID)
	assert.Equal(t, "leg_press", second.Sessions[1].Work[0].Original.ExerciseID)
}

func TestApply_RestoresWhenInjuryCleared(t *testing.T) {
	internals := newInternals(t)
	engine := substitution.NewEngine(internals.Injuries, internals.Exercises)
	ctx := context.Background()

	swapped, err := engine.Apply(ctx, pushDay(), []string{"shoulder"}, substitution.Options{Library: library})
	require.NoError(t, err)
	require.True(t, swapped.Sessions[0].Work[0].WasSubstituted)

	restored, err := engine.Apply(ctx, swapped.Sessions, nil, substitution.Options{Library: library})
	require.NoError(t, err)
	assert.Equal(t, 1, restored.Restored)
	assert.Equal(t, pushDay(), restored.Sessions)
}

func TestApply_NilTableAndCancelledContext(t *testing.T) {
	engine := substitution.NewEngine(nil, nil)
	res, err := engine.Apply(context.Background(), pushDay(), []string{"shoulder"}, substitution.Options{})
	require.NoError(t, err)
	assert.Equal(t, pushDay(), res.Sessions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = engine.Apply(ctx, pushDay(), nil, substitution.Options{})
	require.ErrorIs(t, err, context.Canceled)
}

var exercisePool = []string{
	"overhead_press", "goblet_squat", "romanian_deadlift", "walking_lunge",
	"pike_push_up", "box_jump", "push_up", "lat_pulldown", "upright_row_cable",
	"leg_press", "good_morning", "seated_row", "plank",
}

var injuryPool = []string{"shoulder", "knee", "lower_back", "wrist"}

func randomSessions(faker *gofakeit.Faker) []templates.Session {
	sessions := make([]templates.Session, faker.Number(1, 5))
	for i := range sessions {
		sessions[i].Day = i + 1
		work := make([]templates.ExerciseAssignment, faker.Number(1, 6))
		for j := range work {
			id := faker.RandomString(exercisePool)
			if faker.Bool() {
				id = faker.Word() + "_" + faker.Word()
			}
			work[j] = templates.ExerciseAssignment{
				ExerciseID: id,
				Name:       faker.Word(),
				Sets:       faker.Number(1, 6),
				Reps:       faker.RandomString([]string{"5", "8-10", "12", "30s"}),
			}
		}
		sessions[i].Work = work
	}
	return sessions
}

func randomInjuries(faker *gofakeit.Faker) []string {
	var out []string
	for _, code := range injuryPool {
		if faker.Bool() {
			out = append(out, code)
		}
	}
	return out
}

func TestApply_SubstitutesAreSafeOrFlagged(t *testing.T) {
	internals := newInternals(t)
	engine := substitution.NewEngine(internals.Injuries, internals.Exercises)
	ctx := context.Background()

	for seed := int64(1); seed <= 200; seed++ {
		faker := gofakeit.New(seed)
		sessions := randomSessions(faker)
		codes := randomInjuries(faker)
		opts := substitution.Options{Library: library}
		if faker.Bool() {
			opts.Available = []string{"glute_bridge", "chest_press_machine", faker.RandomString(exercisePool)}
		}

		res, err := engine.Apply(ctx, sessions, codes, opts)
		require.NoError(t, err)
		require.Len(t, res.Sessions, len(sessions))

		stillConflicting := 0
		for si, s := range res.Sessions {
			require.Len(t, s.Work, len(sessions[si].Work))
			for wi, a := range s.Work {
				in := sessions[si].Work[wi]
				assert.Equal(t, in.Sets, a.Sets, "seed %d", seed)
				assert.Equal(t, in.Reps, a.Reps, "seed %d", seed)

				conflicts := internals.Injuries.Check(a.ExerciseID, a.Name, codes).Avoid
				if conflicts {
					stillConflicting++
				}
				if a.WasSubstituted && !a.SubstitutionUnsafe {
					assert.False(t, conflicts, "seed %d: %s replaced by unsafe %s", seed, in.ExerciseID, a.ExerciseID)
				}
			}
		}
		// every exercise left in conflict is reported exactly once
		assert.Len(t, res.Warnings, stillConflicting, "seed %d", seed)

		again, err := engine.Apply(ctx, res.Sessions, codes, opts)
		require.NoError(t, err)
		assert.Equal(t, res.Sessions, again.Sessions, "seed %d", seed)
	}
}
