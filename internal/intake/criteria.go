package intake

import (
	"strings"

	"github.com/2beens/fitplan/internal/templates"
)

// Criteria is the caller supplied input for one resolution run.
type Criteria struct {
	Goal                  string   `json:"goal"`
	Location              string   `json:"location"`
	TrainingDaysAvailable int      `json:"trainingDaysAvailable"`
	ExperienceLevel       string   `json:"experienceLevel"`
	Injuries              []string `json:"injuries"`
}

var goalSynonyms = map[string]string{
	"lose_weight":       templates.GoalFatLoss,
	"weight_loss":       templates.GoalFatLoss,
	"fat_loss":          templates.GoalFatLoss,
	"build_muscle":      templates.GoalMuscleGain,
	"muscle_gain":       templates.GoalMuscleGain,
	"hypertrophy":       templates.GoalMuscleGain,
	"improve_endurance": templates.GoalEndurance,
	"endurance":         templates.GoalEndurance,
	"get_stronger":      templates.GoalStrength,
	"strength":          templates.GoalStrength,
	"general_fitness":   templates.GoalGeneralFitness,
	"stay_fit":          templates.GoalGeneralFitness,
}

var locationSynonyms = map[string]string{
	"at_gym":   templates.LocationGym,
	"gym":      templates.LocationGym,
	"at_home":  templates.LocationHome,
	"home":     templates.LocationHome,
	"outdoor":  templates.LocationOutdoors,
	"outdoors": templates.LocationOutdoors,
	"both":     templates.LocationHybrid,
	"hybrid":   templates.LocationHybrid,
}

var experienceSynonyms = map[string]string{
	"never_trained":       templates.ExperienceBeginner,
	"less_than_6_months":  templates.ExperienceBeginner,
	"beginner":            templates.ExperienceBeginner,
	"6_months_to_2_years": templates.ExperienceIntermediate,
	"intermediate":        templates.ExperienceIntermediate,
	"more_than_2_years":   templates.ExperienceAdvanced,
	"expert":              templates.ExperienceAdvanced,
	"advanced":            templates.ExperienceAdvanced,
}

func canonical(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// NormalizeGoal maps caller vocabulary onto catalog goals.
// Unknown values pass through in canonical form.
func NormalizeGoal(goal string) string {
	return lookup(goalSynonyms, goal)
}

func NormalizeLocation(location string) string {
	return lookup(locationSynonyms, location)
}

func NormalizeExperience(level string) string {
	return lookup(experienceSynonyms, level)
}

func lookup(m map[string]string, v string) string {
	c := canonical(v)
	if mapped, ok := m[c]; ok {
		return mapped
	}
	return c
}

// Normalized returns a copy with mapped vocabularies and a de-duplicated
// injury set in first-seen order.
func (c Criteria) Normalized() Criteria {
	out := Criteria{
		Goal:                  NormalizeGoal(c.Goal),
		Location:              NormalizeLocation(c.Location),
		TrainingDaysAvailable: c.TrainingDaysAvailable,
		ExperienceLevel:       NormalizeExperience(c.ExperienceLevel),
	}
	seen := map[string]struct{}{}
	for _, injury := range c.Injuries {
		code := canonical(injury)
		if code == "" || code == "none" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out.Injuries = append(out.Injuries, code)
	}
	return out
}

// WithDefaults fills empty dimensions the way plan generation expects them.
func (c Criteria) WithDefaults() Criteria {
	if c.Location == "" {
		c.Location = templates.LocationGym
	}
	if c.Goal == "" {
		c.Goal = templates.GoalGeneralFitness
	}
	if c.ExperienceLevel == "" {
		c.ExperienceLevel = templates.ExperienceBeginner
	}
	return c
}
