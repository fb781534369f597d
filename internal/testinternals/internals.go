package testinternals

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"

	"github.com/2beens/fitplan/internal/exercisecatalog"
	"github.com/2beens/fitplan/internal/injuries"
	"github.com/2beens/fitplan/internal/templates"
)

const (
	StarterFatLossGymID     = "starter_fat_loss_gym_3d"
	StarterMuscleHomeID     = "starter_muscle_gain_home_4d"
	AdvancedGymID           = "advanced_gym_multi_3d"
	AdvancedHomeEnduranceID = "advanced_home_endurance_5d"
)

const StarterFatLossGymJSON = `{
	"plan_id": "starter_fat_loss_gym_3d",
	"type": "starter",
	"name_en": "Starter Fat Loss (Gym, 3 days)",
	"name_ar": "برنامج حرق الدهون",
	"description_en": "Full body circuits for beginners",
	"goal": "fat_loss",
	"location": "gym",
	"training_days": 3,
	"weeks": 4,
	"blocks": [{"name": "base", "weeks": [1, 2, 3, 4]}],
	"fitness_score": {"weekly_expected": {"min": 2, "max": 4}},
	"sessions": [
		{
			"day": 1,
			"name_en": "Full Body A",
			"work": [
				{"ex_id": "goblet_squat", "name_en": "Goblet Squat", "sets": 3, "reps": "12", "rest_s": 60, "rpe": 7},
				{"ex_id": "push_up", "name_en": "Push Up", "sets": 3, "reps": 10}
			],
			"conditioning": {"type": "intervals", "protocol": "30s on / 30s off", "intensity": "moderate", "duration_min": 10, "machine_options": ["bike", "rower"]}
		},
		{
			"day": 2,
			"name_en": "Full Body B",
			"work": [
				{"ex_id": "romanian_deadlift", "name_en": "Romanian Deadlift", "sets": 3, "reps": "10", "rest_seconds": 90},
				{"ex_id": "lat_pulldown", "name_en": "Lat Pulldown", "sets": 3, "reps": "12"}
			]
		},
		{
			"day": 3,
			"name_en": "Full Body C",
			"work": [
				{"ex_id": "walking_lunge", "name_en": "Walking Lunge", "sets": 3, "reps": "10 each"},
				{"ex_id": "overhead_press", "name_en": "Overhead Press", "sets": 3, "reps": "8-10", "rpe": 8}
			]
		}
	]
}`

const StarterMuscleHomeJSON = `{
	"plan_id": "starter_muscle_gain_home_4d",
	"type": "starter",
	"name_en": "Starter Muscle Gain (Home, 4 days)",
	"goal": "muscle_gain",
	"location": "home",
	"training_days": 4,
	"weeks": 6,
	"sessions": [
		{"day": 1, "name_en": "Upper", "work": [{"ex_id": "push_up", "name_en": "Push Up", "sets": 4, "reps": "12"}]},
		{"day": 2, "name_en": "Lower", "work": [{"ex_id": "split_squat", "name_en": "Split Squat", "sets": 4, "reps": "10"}]},
		{"day": 3, "name_en": "Upper", "work": [{"ex_id": "pike_push_up", "name_en": "Pike Push Up", "sets": 3, "reps": "8"}]},
		{"day": 4, "name_en": "Lower", "work": [{"ex_id": "glute_bridge", "name_en": "Glute Bridge", "sets": 3, "reps": "15"}]}
	]
}`

const AdvancedGymJSON = `{
	"plan_id": "advanced_gym_multi_3d",
	"type": "advanced",
	"name_en": "Advanced Gym Program",
	"training_days": 3,
	"weeks": 4,
	"fitness_score": {
		"by_experience": {"beginner": {"week_4": 12}, "advanced": {"week_4": 20}},
		"weekly_expected": {"min": 1}
	},
	"exercises": [
		{"ex_id": "overhead_press", "name_en": "Overhead Press", "equip": ["barbell"], "muscles": ["shoulders"], "video_id": "vid-ohp"},
		{"ex_id": "chest_press_machine", "name_en": "Chest Press Machine", "equip": ["machine"], "muscles": ["chest"], "video_id": "vid-cpm"},
		{"ex_id": "lat_pulldown", "name_en": "Lat Pulldown", "equip": ["cable"], "muscles": ["lats"]},
		{"ex_id": "leg_press", "name_en": "Leg Press", "equip": ["machine"], "muscles": ["quads"]}
	],
	"injury_swaps": {
		"knee": {"swap_map": {"leg_press": ["hamstring_curl"]}}
	},
	"experience_adjustments": {
		"beginner": {"set_multiplier": 0.75, "intensity_bias": -1},
		"intermediate": {"set_multiplier": 1, "intensity_bias": 0},
		"advanced": {"set_multiplier": 1.25, "intensity_bias": 1}
	},
	"programs": {
		"gym": {
			"fat_loss": {
				"beginner": [
					{
						"day": 1,
						"name_en": "Push",
						"work": [
							{"ex_id": "overhead_press", "sets": 4, "reps": "8-10", "rest_s": 120, "rpe": 7},
							{"ex_id": "lat_pulldown", "sets": 3, "reps": "12", "rpe": 9.5}
						]
					},
					{
						"day": 2,
						"name_en": "Legs",
						"work": [{"ex_id": "leg_press", "sets": 3, "reps": "12"}],
						"conditioning": {"type": "steady_state", "duration_min": 20}
					},
					{
						"day": 3,
						"week": 4,
						"name_en": "Deload Test",
						"work": [{"ex_id": "lat_pulldown", "sets": 2, "reps": "10"}]
					}
				],
				"intermediate": [
					{"day": 1, "name_en": "Push", "work": [{"ex_id": "overhead_press", "sets": 4, "reps": "6-8", "rpe": 8}]}
				]
			},
			"muscle_gain": {
				"advanced": [
					{"day": 1, "name_en": "Heavy", "work": [{"ex_id": "leg_press", "sets": 5, "reps": "5", "rpe": 9}]}
				]
			}
		}
	}
}`

const AdvancedHomeEnduranceJSON = `{
	"plan_id": "advanced_home_endurance_5d",
	"type": "advanced",
	"name_en": "Advanced Home Endurance",
	"training_days": 5,
	"weeks": 8,
	"programs": {
		"home": {
			"endurance": {
				"beginner": [
					{"day": 1, "name_en": "Tempo", "work": [{"ex_id": "burpee", "name_en": "Burpee", "sets": 3, "reps": "15"}]}
				]
			}
		}
	}
}`

const InjuryMappingJSON = `{
	"shoulder": {
		"description_en": "Shoulder injury",
		"avoid_keywords": ["overhead", "upright_row", "pike"],
		"substitute_exercises": ["chest_press_machine", "lateral_raise_cable"]
	},
	"knee": {
		"description_en": "Knee injury",
		"avoid_keywords": ["squat", "lunge", "jump", "leg_press"],
		"substitute_exercises": ["hamstring_curl", "glute_bridge"]
	},
	"lower_back": {
		"description_en": "Lower back pain",
		"avoid_keywords": ["deadlift", "good_morning"],
		"substitute_exercises": ["back_extension_machine", "glute_bridge"]
	}
}`

const ExerciseCatalogJSON = `{
	"exercises": [
		{"id": "hamstring_curl", "name_en": "Hamstring Curl", "equip": ["machine"], "muscles": ["hamstrings"], "video_id": "vid-hc"},
		{"id": "glute_bridge", "name_en": "Glute Bridge", "equip": [], "muscles": ["glutes"]},
		{"id": "lateral_raise_cable", "name_en": "Cable Lateral Raise", "equip": ["cable"], "muscles": ["delts"]},
		{"id": "back_extension_machine", "name_en": "Back Extension Machine", "equip": ["machine"], "muscles": ["erectors"]},
		{"id": "push_up", "name_en": "Push Up", "muscles": ["chest"], "video_id": "vid-pu"}
	]
}`

func Documents() []templates.Document {
	return []templates.Document{
		{Source: "fixtures/starter/" + StarterFatLossGymID + ".json", Format: templates.FormatJSON, Raw: []byte(StarterFatLossGymJSON)},
		{Source: "fixtures/starter/" + StarterMuscleHomeID + ".json", Format: templates.FormatJSON, Raw: []byte(StarterMuscleHomeJSON)},
		{Source: "fixtures/advanced/" + AdvancedGymID + ".json", Format: templates.FormatJSON, Raw: []byte(AdvancedGymJSON)},
		{Source: "fixtures/advanced/" + AdvancedHomeEnduranceID + ".json", Format: templates.FormatJSON, Raw: []byte(AdvancedHomeEnduranceJSON)},
	}
}

type Internals struct {
	Catalog   *templates.Catalog
	Injuries  *injuries.Table
	Exercises *exercisecatalog.FileCatalog

	// redis
	RedisClient *redis.Client
	RedisMock   redismock.ClientMock
}

func NewTestingInternals() *Internals {
	catalog := templates.NewCatalog(templates.NewStaticLoader(Documents()...))
	if _, err := catalog.Load(context.Background()); err != nil {
		panic(err)
	}

	table, err := injuries.Load(strings.NewReader(InjuryMappingJSON))
	if err != nil {
		panic(err)
	}

	exercises, err := exercisecatalog.LoadFileCatalog(strings.NewReader(ExerciseCatalogJSON))
	if err != nil {
		panic(err)
	}

	redisClient, redisMock := redismock.NewClientMock()

	return &Internals{
		Catalog:     catalog,
		Injuries:    table,
		Exercises:   exercises,
		RedisClient: redisClient,
		RedisMock:   redisMock,
	}
}

func Ptr[T any](v T) *T {
	return &v
}

func (i *Internals) Close() {
	if err := i.RedisClient.Close(); err != nil {
		panic(err)
	}
}
