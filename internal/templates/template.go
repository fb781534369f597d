package templates

import (
	"encoding/json"
	"slices"
)

type Type string

const (
	TypeStarter  Type = "starter"
	TypeAdvanced Type = "advanced"
)

func (t Type) Valid() bool {
	return t == TypeStarter || t == TypeAdvanced
}

const (
	GoalFatLoss        = "fat_loss"
	GoalMuscleGain     = "muscle_gain"
	GoalGeneralFitness = "general_fitness"
	GoalEndurance      = "endurance"
	GoalStrength       = "strength"
	GoalHypertrophy    = "hypertrophy"

	LocationGym      = "gym"
	LocationHome     = "home"
	LocationOutdoors = "outdoors"
	LocationHybrid   = "hybrid"

	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
)

var (
	KnownGoals = []string{
		GoalFatLoss, GoalMuscleGain, GoalGeneralFitness,
		GoalEndurance, GoalStrength, GoalHypertrophy,
	}
	KnownLocations        = []string{LocationGym, LocationHome, LocationOutdoors, LocationHybrid}
	KnownExperienceLevels = []string{ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced}
)

// Template is an immutable program definition. Exactly one of Starter and
// Advanced is set, matching Type.
type Template struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	Name          string          `json:"name"`
	NameAR        string          `json:"nameAr,omitempty"`
	Description   string          `json:"description,omitempty"`
	DescriptionAR string          `json:"descriptionAr,omitempty"`
	Goal          string          `json:"goal,omitempty"`
	Location      string          `json:"location,omitempty"`
	TrainingDays  int             `json:"trainingDays"`
	DurationWeeks int             `json:"durationWeeks"`
	Blocks        json.RawMessage `json:"blocks,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	FitnessScore  *FitnessScore   `json:"fitnessScore,omitempty"`
	Source        string          `json:"-"`

	Starter  *StarterProgram  `json:"-"`
	Advanced *AdvancedProgram `json:"-"`
}

type StarterProgram struct {
	Sessions []Session
}

// AdvancedProgram holds programs[location][goal][experience].
type AdvancedProgram struct {
	Programs              map[string]map[string]map[string][]Session
	ExerciseLibrary       map[string]ExerciseDef
	InjurySwaps           map[string]map[string][]string
	ExperienceAdjustments map[string]ExperienceAdjustment
}

type ExperienceAdjustment struct {
	SetMultiplier float64 `json:"setMultiplier"`
	IntensityBias float64 `json:"intensityBias"`
}

type FitnessScore struct {
	ByExperience   map[string]json.RawMessage `json:"byExperience,omitempty"`
	WeeklyExpected json.RawMessage            `json:"weeklyExpected,omitempty"`
}

type ExerciseDef struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	NameAR    string   `json:"nameAr,omitempty"`
	Equipment []string `json:"equipment,omitempty"`
	Muscles   []string `json:"muscles,omitempty"`
	VideoID   string   `json:"videoId,omitempty"`
}

// Session is one training day. Week 0 means the session repeats every week.
type Session struct {
	Day          int                  `json:"day"`
	Week         int                  `json:"week,omitempty"`
	Name         string               `json:"name"`
	NameAR       string               `json:"nameAr,omitempty"`
	Work         []ExerciseAssignment `json:"work"`
	Conditioning *Conditioning        `json:"conditioning,omitempty"`
}

type ExerciseAssignment struct {
	ExerciseID  string   `json:"exerciseId"`
	Name        string   `json:"name"`
	NameAR      string   `json:"nameAr,omitempty"`
	Sets        int      `json:"sets"`
	Reps        string   `json:"reps"`
	RestSeconds int      `json:"restSeconds,omitempty"`
	Intensity   *float64 `json:"intensity,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	NotesAR     string   `json:"notesAr,omitempty"`
	Equipment   []string `json:"equipment,omitempty"`
	Muscles     []string `json:"muscles,omitempty"`
	VideoID     string   `json:"videoId,omitempty"`

	WasSubstituted     bool              `json:"wasSubstituted,omitempty"`
	Original           *ExerciseIdentity `json:"original,omitempty"`
	SubstitutionReason string            `json:"substitutionReason,omitempty"`
	SubstitutionInjury string            `json:"substitutionInjury,omitempty"`
	SubstitutionUnsafe bool              `json:"substitutionUnsafe,omitempty"`
}

// ExerciseIdentity is the display identity of an exercise as the template
// declared it, captured before the first substitution.
type ExerciseIdentity struct {
	ExerciseID string   `json:"exerciseId"`
	Name       string   `json:"name"`
	NameAR     string   `json:"nameAr,omitempty"`
	Equipment  []string `json:"equipment,omitempty"`
	Muscles    []string `json:"muscles,omitempty"`
	VideoID    string   `json:"videoId,omitempty"`
}

type Conditioning struct {
	Type            string   `json:"type"`
	TypeAR          string   `json:"typeAr,omitempty"`
	Protocol        string   `json:"protocol,omitempty"`
	ProtocolAR      string   `json:"protocolAr,omitempty"`
	Intensity       string   `json:"intensity,omitempty"`
	TargetHeartRate string   `json:"targetHeartRate,omitempty"`
	DurationMin     int      `json:"durationMin,omitempty"`
	MachineOptions  []string `json:"machineOptions,omitempty"`
}

// Identity returns the identity used for injury matching: the captured
// original when the assignment was already substituted.
func (a ExerciseAssignment) Identity() ExerciseIdentity {
	if a.Original != nil {
		return a.Original.clone()
	}
	return a.CurrentIdentity()
}

func (a ExerciseAssignment) CurrentIdentity() ExerciseIdentity {
	return ExerciseIdentity{
		ExerciseID: a.ExerciseID,
		Name:       a.Name,
		NameAR:     a.NameAR,
		Equipment:  slices.Clone(a.Equipment),
		Muscles:    slices.Clone(a.Muscles),
		VideoID:    a.VideoID,
	}
}

func (i ExerciseIdentity) clone() ExerciseIdentity {
	i.Equipment = slices.Clone(i.Equipment)
	i.Muscles = slices.Clone(i.Muscles)
	return i
}

func (a ExerciseAssignment) Clone() ExerciseAssignment {
	c := a
	c.Equipment = slices.Clone(a.Equipment)
	c.Muscles = slices.Clone(a.Muscles)
	if a.Intensity != nil {
		v := *a.Intensity
		c.Intensity = &v
	}
	if a.Original != nil {
		o := a.Original.clone()
		c.Original = &o
	}
	return c
}

func (c *Conditioning) Clone() *Conditioning {
	if c == nil {
		return nil
	}
	cc := *c
	cc.MachineOptions = slices.Clone(c.MachineOptions)
	return &cc
}

func (s Session) Clone() Session {
	c := s
	c.Conditioning = s.Conditioning.Clone()
	if s.Work != nil {
		c.Work = make([]ExerciseAssignment, len(s.Work))
		for i, a := range s.Work {
			c.Work[i] = a.Clone()
		}
	}
	return c
}

func CloneSessions(sessions []Session) []Session {
	if sessions == nil {
		return nil
	}
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		out[i] = s.Clone()
	}
	return out
}

// SupportsGoal reports whether the template declares the goal, either at the
// top level or (advanced) as a key under any location of programs.
func (t *Template) SupportsGoal(goal string) bool {
	if t.Goal == goal {
		return true
	}
	if t.Advanced == nil {
		return false
	}
	for _, goals := range t.Advanced.Programs {
		if _, ok := goals[goal]; ok {
			return true
		}
	}
	return false
}

func (t *Template) SupportsLocation(location string) bool {
	if t.Location == location {
		return true
	}
	if t.Advanced == nil {
		return false
	}
	_, ok := t.Advanced.Programs[location]
	return ok
}

func (t *Template) ExerciseLibrary() map[string]ExerciseDef {
	if t.Advanced == nil {
		return nil
	}
	return t.Advanced.ExerciseLibrary
}

func (t *Template) ExerciseDefinition(exerciseID string) (ExerciseDef, bool) {
	def, ok := t.ExerciseLibrary()[exerciseID]
	return def, ok
}

func (t *Template) InjurySwaps() map[string]map[string][]string {
	if t.Advanced == nil {
		return nil
	}
	return t.Advanced.InjurySwaps
}

func (t *Template) ExperienceAdjustments() map[string]ExperienceAdjustment {
	if t.Advanced == nil {
		return nil
	}
	return t.Advanced.ExperienceAdjustments
}

// FitnessScoreProjection returns the per-experience projection when declared,
// else the flat weekly expectation, else nil.
func (t *Template) FitnessScoreProjection(experienceLevel string) json.RawMessage {
	if t.FitnessScore == nil {
		return nil
	}
	if p, ok := t.FitnessScore.ByExperience[experienceLevel]; ok {
		return p
	}
	if len(t.FitnessScore.WeeklyExpected) > 0 {
		return t.FitnessScore.WeeklyExpected
	}
	return nil
}

type Summary struct {
	ID            string   `json:"id"`
	Type          Type     `json:"type"`
	Name          string   `json:"name"`
	NameAR        string   `json:"nameAr,omitempty"`
	Description   string   `json:"description,omitempty"`
	Goal          string   `json:"goal,omitempty"`
	Location      string   `json:"location,omitempty"`
	TrainingDays  int      `json:"trainingDays"`
	DurationWeeks int      `json:"durationWeeks"`
	SessionCount  int      `json:"sessionCount"`
	Locations     []string `json:"locations,omitempty"`
	Goals         []string `json:"goals,omitempty"`
}

func (t *Template) Summary() Summary {
	s := Summary{
		ID:            t.ID,
		Type:          t.Type,
		Name:          t.Name,
		NameAR:        t.NameAR,
		Description:   t.Description,
		Goal:          t.Goal,
		Location:      t.Location,
		TrainingDays:  t.TrainingDays,
		DurationWeeks: t.DurationWeeks,
	}
	switch {
	case t.Starter != nil:
		s.SessionCount = len(t.Starter.Sessions)
	case t.Advanced != nil:
		goals := map[string]struct{}{}
		for loc, byGoal := range t.Advanced.Programs {
			s.Locations = append(s.Locations, loc)
			for goal, byExp := range byGoal {
				goals[goal] = struct{}{}
				for _, sessions := range byExp {
					s.SessionCount += len(sessions)
				}
			}
		}
		for g := range goals {
			s.Goals = append(s.Goals, g)
		}
		slices.Sort(s.Locations)
		slices.Sort(s.Goals)
	}
	return s
}
