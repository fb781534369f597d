package intake

import (
	"github.com/2beens/fitplan/internal/templates"
)

type Stage string

const (
	StageBasic Stage = "basic"
	StageFull  Stage = "full"
)

// Profile holds the intake answers a user submitted.
type Profile struct {
	PrimaryGoal      string   `json:"primaryGoal"`
	WorkoutLocation  string   `json:"workoutLocation"`
	TrainingDays     int      `json:"trainingDays"`
	ExperienceLevel  string   `json:"experienceLevel"`
	FitnessLevel     string   `json:"fitnessLevel"`
	InjuryHistory    []string `json:"injuryHistory"`
	Stage            Stage    `json:"stage"`
	SubscriptionTier string   `json:"subscriptionTier"`
}

func (p Profile) Criteria() Criteria {
	level := p.ExperienceLevel
	if level == "" {
		level = p.FitnessLevel
	}
	return Criteria{
		Goal:                  p.PrimaryGoal,
		Location:              p.WorkoutLocation,
		TrainingDaysAvailable: p.TrainingDays,
		ExperienceLevel:       level,
		Injuries:              p.InjuryHistory,
	}.Normalized()
}

// TemplateType is starter for basic intake and freemium users, advanced once
// the full intake is complete.
func (p Profile) TemplateType() templates.Type {
	if p.Stage != StageFull || canonical(p.SubscriptionTier) == "freemium" {
		return templates.TypeStarter
	}
	return templates.TypeAdvanced
}
