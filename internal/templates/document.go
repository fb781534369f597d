package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func FormatForPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, true
	case ".yaml", ".yml":
		return FormatYAML, true
	case ".toml":
		return FormatTOML, true
	default:
		return "", false
	}
}

// Document is one raw template as produced by a Loader.
type Document struct {
	Source   string
	Format   Format
	TypeHint Type
	Raw      []byte
}

// Decode parses and validates a single document.
// Any problem is returned as a *ValidationError.
func Decode(doc Document) (*Template, error) {
	raw, err := asJSON(doc)
	if err != nil {
		return nil, &ValidationError{Source: doc.Source, Err: err}
	}

	var w wireTemplate
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return nil, &ValidationError{Source: doc.Source, Err: fmt.Errorf("decode document: %w", err)}
	}
	if w.Type == "" && doc.TypeHint != "" {
		w.Type = string(doc.TypeHint)
	}

	t, err := w.build()
	if err != nil {
		return nil, &ValidationError{TemplateID: w.planID(), Source: doc.Source, Err: err}
	}
	t.Source = doc.Source
	return t, nil
}

// asJSON converts yaml and toml documents to json so that a single set of
// wire types covers all formats.
func asJSON(doc Document) ([]byte, error) {
	switch doc.Format {
	case FormatJSON, "":
		return doc.Raw, nil
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(doc.Raw, &v); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("yaml to json: %w", err)
		}
		return b, nil
	case FormatTOML:
		v := map[string]any{}
		if err := toml.Unmarshal(doc.Raw, &v); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("toml to json: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", doc.Format)
	}
}

type wireTemplate struct {
	PlanID        string `json:"plan_id"`
	ID            string `json:"id"`
	Type          string `json:"type"`
	NameEN        string `json:"name_en"`
	Name          string `json:"name"`
	NameAR        string `json:"name_ar"`
	DescriptionEN string `json:"description_en"`
	Description   string `json:"description"`
	DescriptionAR string `json:"description_ar"`
	Goal          string `json:"goal"`
	Location      string `json:"location"`
	TrainingDays  *int   `json:"training_days"`
	Weeks         *int   `json:"weeks"`

	Sessions              json.RawMessage            `json:"sessions"`
	Programs              json.RawMessage            `json:"programs"`
	Exercises             json.RawMessage            `json:"exercises"`
	InjurySwaps           map[string]json.RawMessage `json:"injury_swaps"`
	ExperienceAdjustments map[string]json.RawMessage `json:"experience_adjustments"`

	Blocks       json.RawMessage   `json:"blocks"`
	Metadata     json.RawMessage   `json:"metadata"`
	FitnessScore *wireFitnessScore `json:"fitness_score"`
}

func (w *wireTemplate) planID() string {
	if w.PlanID != "" {
		return w.PlanID
	}
	return w.ID
}

type wireFitnessScore struct {
	ByExperience   map[string]json.RawMessage `json:"by_experience"`
	WeeklyExpected json.RawMessage            `json:"weekly_expected"`
}

type wireSession struct {
	Day          *int              `json:"day"`
	Week         int               `json:"week"`
	NameEN       string            `json:"name_en"`
	Name         string            `json:"name"`
	NameAR       string            `json:"name_ar"`
	Work         []wireExercise    `json:"work"`
	Conditioning *wireConditioning `json:"conditioning"`
}

type wireExercise struct {
	ExID        string     `json:"ex_id"`
	ID          string     `json:"id"`
	NameEN      string     `json:"name_en"`
	Name        string     `json:"name"`
	NameAR      string     `json:"name_ar"`
	Sets        *int       `json:"sets"`
	Reps        flexString `json:"reps"`
	RestS       *int       `json:"rest_s"`
	RestSeconds *int       `json:"rest_seconds"`
	RPE         *float64   `json:"rpe"`
	NotesEN     string     `json:"notes_en"`
	Notes       string     `json:"notes"`
	NotesAR     string     `json:"notes_ar"`
	Equip       []string   `json:"equip"`
	Equipment   []string   `json:"equipment"`
	Muscles     []string   `json:"muscles"`
	VideoID     string     `json:"video_id"`
}

type wireConditioning struct {
	Type            string     `json:"type"`
	TypeAR          string     `json:"type_ar"`
	Protocol        string     `json:"protocol"`
	ProtocolAR      string     `json:"protocol_ar"`
	Intensity       flexString `json:"intensity"`
	TargetHeartRate flexString `json:"target_heart_rate"`
	DurationMin     *int       `json:"duration_min"`
	MachineOptions  []string   `json:"machine_options"`
}

type wireAdjustment struct {
	SetMultiplier *float64 `json:"set_multiplier"`
	IntensityBias *float64 `json:"intensity_bias"`
}

// flexString accepts both strings and numbers ("8-10" and 10 are both valid reps).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

func (e wireExercise) id() string {
	if e.ExID != "" {
		return e.ExID
	}
	return e.ID
}

func (e wireExercise) assignment() ExerciseAssignment {
	a := ExerciseAssignment{
		ExerciseID: e.id(),
		Name:       firstNonEmpty(e.NameEN, e.Name),
		NameAR:     e.NameAR,
		Reps:       string(e.Reps),
		Intensity:  e.RPE,
		Notes:      firstNonEmpty(e.NotesEN, e.Notes),
		NotesAR:    e.NotesAR,
		Equipment:  e.Equip,
		Muscles:    e.Muscles,
		VideoID:    e.VideoID,
	}
	if a.Equipment == nil {
		a.Equipment = e.Equipment
	}
	if e.Sets != nil {
		a.Sets = *e.Sets
	}
	switch {
	case e.RestS != nil:
		a.RestSeconds = *e.RestS
	case e.RestSeconds != nil:
		a.RestSeconds = *e.RestSeconds
	}
	return a
}

func (e wireExercise) definition(fallbackID string) ExerciseDef {
	d := ExerciseDef{
		ID:        firstNonEmpty(e.id(), fallbackID),
		Name:      firstNonEmpty(e.NameEN, e.Name),
		NameAR:    e.NameAR,
		Equipment: e.Equip,
		Muscles:   e.Muscles,
		VideoID:   e.VideoID,
	}
	if d.Equipment == nil {
		d.Equipment = e.Equipment
	}
	return d
}

func (c *wireConditioning) conditioning() *Conditioning {
	if c == nil {
		return nil
	}
	out := &Conditioning{
		Type:            c.Type,
		TypeAR:          c.TypeAR,
		Protocol:        c.Protocol,
		ProtocolAR:      c.ProtocolAR,
		Intensity:       string(c.Intensity),
		TargetHeartRate: string(c.TargetHeartRate),
		MachineOptions:  c.MachineOptions,
	}
	if c.DurationMin != nil {
		out.DurationMin = *c.DurationMin
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
