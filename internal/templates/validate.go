package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const (
	minWeeks        = 1
	maxWeeks        = 52
	minTrainingDays = 1
	maxTrainingDays = 7
)

func (w *wireTemplate) build() (*Template, error) {
	var errs error

	id := w.planID()
	if id == "" {
		errs = multierr.Append(errs, errors.New("missing required field: plan_id"))
	}

	typ := Type(strings.ToLower(strings.TrimSpace(w.Type)))
	switch {
	case typ == "":
		errs = multierr.Append(errs, errors.New("missing required field: type"))
	case !typ.Valid():
		errs = multierr.Append(errs, fmt.Errorf("invalid type %q: must be one of %s, %s", w.Type, TypeStarter, TypeAdvanced))
	}

	errs = multierr.Append(errs, checkRange("weeks", w.Weeks, minWeeks, maxWeeks))
	errs = multierr.Append(errs, checkRange("training_days", w.TrainingDays, minTrainingDays, maxTrainingDays))

	t := &Template{
		ID:            id,
		Type:          typ,
		Name:          firstNonEmpty(w.NameEN, w.Name, id),
		NameAR:        w.NameAR,
		Description:   firstNonEmpty(w.DescriptionEN, w.Description),
		DescriptionAR: w.DescriptionAR,
		Goal:          w.Goal,
		Location:      w.Location,
		Blocks:        w.Blocks,
		Metadata:      w.Metadata,
	}
	if w.Weeks != nil {
		t.DurationWeeks = *w.Weeks
	}
	if w.TrainingDays != nil {
		t.TrainingDays = *w.TrainingDays
	}
	if w.FitnessScore != nil {
		t.FitnessScore = &FitnessScore{
			ByExperience:   w.FitnessScore.ByExperience,
			WeeklyExpected: w.FitnessScore.WeeklyExpected,
		}
	}

	switch typ {
	case TypeStarter:
		program, err := w.buildStarter()
		errs = multierr.Append(errs, err)
		t.Starter = program
	case TypeAdvanced:
		program, err := w.buildAdvanced(id)
		errs = multierr.Append(errs, err)
		t.Advanced = program
	}

	if errs != nil {
		return nil, errs
	}
	return t, nil
}

// declaredWeeks is the weeks value when it passed its range check, else 0.
func (w *wireTemplate) declaredWeeks() int {
	if w.Weeks == nil || *w.Weeks < minWeeks || *w.Weeks > maxWeeks {
		return 0
	}
	return *w.Weeks
}

func checkRange(field string, v *int, lo, hi int) error {
	if v == nil {
		return fmt.Errorf("missing required field: %s", field)
	}
	if *v < lo || *v > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", field, lo, hi, *v)
	}
	return nil
}

func (w *wireTemplate) buildStarter() (*StarterProgram, error) {
	var errs error
	if w.Goal == "" {
		errs = multierr.Append(errs, errors.New("missing required field: goal"))
	} else if !slices.Contains(KnownGoals, w.Goal) {
		errs = multierr.Append(errs, fmt.Errorf("invalid goal: %s", w.Goal))
	}
	if w.Location == "" {
		errs = multierr.Append(errs, errors.New("missing required field: location"))
	} else if !slices.Contains(KnownLocations, w.Location) {
		errs = multierr.Append(errs, fmt.Errorf("invalid location: %s", w.Location))
	}

	if isAbsent(w.Sessions) {
		return nil, multierr.Append(errs, errors.New("missing required field: sessions"))
	}
	var raw []wireSession
	if err := json.Unmarshal(w.Sessions, &raw); err != nil {
		return nil, multierr.Append(errs, fmt.Errorf("sessions must be an array: %w", err))
	}
	if len(raw) == 0 {
		return nil, multierr.Append(errs, errors.New("starter template must have at least one session"))
	}

	sessions, err := buildSessions("sessions", raw, true, w.declaredWeeks())
	errs = multierr.Append(errs, err)
	if errs != nil {
		return nil, errs
	}
	return &StarterProgram{Sessions: sessions}, nil
}

func (w *wireTemplate) buildAdvanced(templateID string) (*AdvancedProgram, error) {
	var errs error
	program := &AdvancedProgram{
		Programs: map[string]map[string]map[string][]Session{},
	}

	if isAbsent(w.Programs) {
		errs = multierr.Append(errs, errors.New("missing required field: programs"))
	} else {
		programs, err := decodePrograms(templateID, w.Programs, w.declaredWeeks())
		errs = multierr.Append(errs, err)
		program.Programs = programs
	}

	library, err := decodeLibrary(w.Exercises)
	errs = multierr.Append(errs, err)
	program.ExerciseLibrary = library

	swaps, err := decodeSwaps(w.InjurySwaps)
	errs = multierr.Append(errs, err)
	program.InjurySwaps = swaps

	adjustments, err := decodeAdjustments(w.ExperienceAdjustments)
	errs = multierr.Append(errs, err)
	program.ExperienceAdjustments = adjustments

	if errs != nil {
		return nil, errs
	}
	return program, nil
}

func decodePrograms(templateID string, raw json.RawMessage, weeks int) (map[string]map[string]map[string][]Session, error) {
	var byLocation map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byLocation); err != nil {
		return nil, errors.New("advanced template must have programs object")
	}
	if len(byLocation) == 0 {
		return nil, errors.New("advanced template must have at least one location")
	}

	var errs error
	programs := make(map[string]map[string]map[string][]Session, len(byLocation))
	for _, location := range sortedKeys(byLocation) {
		if !slices.Contains(KnownLocations, location) {
			log.Warnf("template [%s]: unknown location in programs: %s", templateID, location)
		}
		var byGoal map[string]json.RawMessage
		if err := json.Unmarshal(byLocation[location], &byGoal); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid programs structure for location: %s", location))
			continue
		}

		programs[location] = make(map[string]map[string][]Session, len(byGoal))
		for _, goal := range sortedKeys(byGoal) {
			if !slices.Contains(KnownGoals, goal) {
				log.Warnf("template [%s]: unknown goal in programs: %s", templateID, goal)
			}
			var byExperience map[string]json.RawMessage
			if err := json.Unmarshal(byGoal[goal], &byExperience); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("invalid experience programs for %s/%s", location, goal))
				continue
			}

			programs[location][goal] = make(map[string][]Session, len(byExperience))
			for _, experience := range sortedKeys(byExperience) {
				if !slices.Contains(KnownExperienceLevels, experience) {
					log.Warnf("template [%s]: unknown experience level: %s", templateID, experience)
				}
				path := location + "/" + goal + "/" + experience
				var raw []wireSession
				if err := json.Unmarshal(byExperience[experience], &raw); err != nil {
					errs = multierr.Append(errs, fmt.Errorf("sessions must be array for %s", path))
					continue
				}
				sessions, err := buildSessions(path, raw, false, weeks)
				if err != nil {
					errs = multierr.Append(errs, err)
					continue
				}
				programs[location][goal][experience] = sessions
			}
		}
	}
	return programs, errs
}

// buildSessions converts raw sessions. Starter assignments must be fully
// self-describing; advanced ones may take their name from the library.
// A session pinned to a week outside 1..weeks would never be materialized.
// weeks 0 skips that check, the weeks field itself is already reported.
func buildSessions(path string, raw []wireSession, strict bool, weeks int) ([]Session, error) {
	var errs error
	sessions := make([]Session, 0, len(raw))
	for i, rs := range raw {
		if rs.Day == nil || *rs.Day < 1 || rs.Work == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid session structure at %s[%d]", path, i))
			continue
		}
		if rs.Week < 0 || (weeks > 0 && rs.Week > weeks) {
			errs = multierr.Append(errs, fmt.Errorf("session week %d out of range at %s[%d], template has %d weeks", rs.Week, path, i, weeks))
			continue
		}
		s := Session{
			Day:          *rs.Day,
			Week:         rs.Week,
			Name:         firstNonEmpty(rs.NameEN, rs.Name),
			NameAR:       rs.NameAR,
			Conditioning: rs.Conditioning.conditioning(),
			Work:         make([]ExerciseAssignment, 0, len(rs.Work)),
		}
		for j, ex := range rs.Work {
			a := ex.assignment()
			invalid := a.ExerciseID == "" || ex.Sets == nil || *ex.Sets < 1 || a.Reps == ""
			if strict && a.Name == "" {
				invalid = true
			}
			if invalid {
				errs = multierr.Append(errs, fmt.Errorf("invalid exercise at %s[%d], exercise %d", path, i, j))
				continue
			}
			s.Work = append(s.Work, a)
		}
		sessions = append(sessions, s)
	}
	return sessions, errs
}

func decodeLibrary(raw json.RawMessage) (map[string]ExerciseDef, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	library := map[string]ExerciseDef{}
	var list []wireExercise
	if err := json.Unmarshal(raw, &list); err == nil {
		for i, ex := range list {
			def := ex.definition("")
			if def.ID == "" {
				return nil, fmt.Errorf("exercise library entry %d has no id", i)
			}
			library[def.ID] = def
		}
		return library, nil
	}

	var byID map[string]wireExercise
	if err := json.Unmarshal(raw, &byID); err != nil {
		return nil, errors.New("exercises must be a list or an object keyed by exercise id")
	}
	for id, ex := range byID {
		library[id] = ex.definition(id)
	}
	return library, nil
}

func decodeSwaps(raw map[string]json.RawMessage) (map[string]map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var errs error
	swaps := make(map[string]map[string][]string, len(raw))
	for _, injury := range sortedKeys(raw) {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(raw[injury], &entry); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid injury_swaps for %s", injury))
			continue
		}
		if swapMap, ok := entry["swap_map"]; ok {
			entry = nil
			if err := json.Unmarshal(swapMap, &entry); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("invalid injury_swaps swap_map for %s", injury))
				continue
			}
		}

		swaps[injury] = make(map[string][]string, len(entry))
		for exerciseID, options := range entry {
			list, err := stringList(options)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("invalid injury_swaps for %s/%s: %w", injury, exerciseID, err))
				continue
			}
			swaps[injury][exerciseID] = list
		}
	}
	return swaps, errs
}

func decodeAdjustments(raw map[string]json.RawMessage) (map[string]ExperienceAdjustment, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var errs error
	adjustments := make(map[string]ExperienceAdjustment, len(raw))
	for _, level := range sortedKeys(raw) {
		var adj wireAdjustment
		if err := json.Unmarshal(raw[level], &adj); err != nil || adj.SetMultiplier == nil || adj.IntensityBias == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid experience_adjustments for %s", level))
			continue
		}
		adjustments[level] = ExperienceAdjustment{
			SetMultiplier: *adj.SetMultiplier,
			IntensityBias: *adj.IntensityBias,
		}
	}
	return adjustments, errs
}

func stringList(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.New("expected exercise id or list of exercise ids")
	}
	return []string{single}, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
