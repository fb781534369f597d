package plans

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/2beens/fitplan/internal/templates"
)

// Plan is one materialized workout plan. Every id in the graph is freshly
// generated, so a plan never references rows of another plan.
type Plan struct {
	ID              uuid.UUID      `json:"id"`
	UserID          string         `json:"userId"`
	CoachID         string         `json:"coachId,omitempty"`
	TemplateID      string         `json:"templateId"`
	TemplateType    templates.Type `json:"templateType"`
	Name            string         `json:"name"`
	NameAR          string         `json:"nameAr,omitempty"`
	Description     string         `json:"description,omitempty"`
	DescriptionAR   string         `json:"descriptionAr,omitempty"`
	Goal            string         `json:"goal"`
	Location        string         `json:"location"`
	ExperienceLevel string         `json:"experienceLevel"`
	DurationWeeks   int            `json:"durationWeeks"`
	DaysPerWeek     int            `json:"daysPerWeek"`
	StartDate       time.Time      `json:"startDate"`
	EndDate         time.Time      `json:"endDate"`
	IsActive        bool           `json:"isActive"`
	Metadata        Metadata       `json:"metadata"`
	Weeks           []Week         `json:"weeks,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

type Metadata struct {
	Blocks                 json.RawMessage `json:"blocks,omitempty"`
	FitnessScoreProjection json.RawMessage `json:"fitnessScoreProjection,omitempty"`
	RoutingConfig          json.RawMessage `json:"routingConfig,omitempty"`
	Warnings               []string        `json:"warnings,omitempty"`
}

type Week struct {
	ID     uuid.UUID `json:"id"`
	PlanID uuid.UUID `json:"planId"`
	Number int       `json:"number"`
	Days   []Day     `json:"days"`
}

type Day struct {
	ID           uuid.UUID               `json:"id"`
	WeekID       uuid.UUID               `json:"weekId"`
	// Order is the 1-based position within the week; Number may repeat.
	Order        int                     `json:"order"`
	Number       int                     `json:"number"`
	Name         string                  `json:"name"`
	NameAR       string                  `json:"nameAr,omitempty"`
	Focus        string                  `json:"focus,omitempty"`
	FocusAR      string                  `json:"focusAr,omitempty"`
	Conditioning *templates.Conditioning `json:"conditioning,omitempty"`
	Exercises    []ExerciseInstance      `json:"exercises"`
}

type ExerciseInstance struct {
	ID                 uuid.UUID `json:"id"`
	DayID              uuid.UUID `json:"dayId"`
	Order              int       `json:"order"`
	ExerciseID         string    `json:"exerciseId"`
	Name               string    `json:"name"`
	NameAR             string    `json:"nameAr,omitempty"`
	Sets               int       `json:"sets"`
	Reps               string    `json:"reps"`
	RestSeconds        int       `json:"restSeconds"`
	Intensity          *float64  `json:"intensity,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	NotesAR            string    `json:"notesAr,omitempty"`
	Equipment          []string  `json:"equipment"`
	Muscles            []string  `json:"muscles"`
	VideoID            string    `json:"videoId,omitempty"`
	WasSubstituted     bool      `json:"wasSubstituted"`
	OriginalExerciseID string    `json:"originalExerciseId,omitempty"`
	SubstitutionReason string    `json:"substitutionReason,omitempty"`
	SubstitutionUnsafe bool      `json:"substitutionUnsafe,omitempty"`
}

// ExerciseCount counts instances across the whole graph.
func (p *Plan) ExerciseCount() int {
	n := 0
	for _, w := range p.Weeks {
		for _, d := range w.Days {
			n += len(d.Exercises)
		}
	}
	return n
}

// Instances returns every instance of the graph in week, day, order sequence.
func (p *Plan) Instances() []ExerciseInstance {
	var out []ExerciseInstance
	for _, w := range p.Weeks {
		for _, d := range w.Days {
			out = append(out, d.Exercises...)
		}
	}
	return out
}
