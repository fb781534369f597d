package injuries

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

var ErrNoMappingSource = errors.New("no readable injury mapping source")

type Entry struct {
	Code                  string   `json:"code"`
	Description           string   `json:"description"`
	DescriptionAR         string   `json:"descriptionAr,omitempty"`
	AvoidKeywords         []string `json:"avoidKeywords"`
	SubstituteExerciseIDs []string `json:"substituteExerciseIds"`

	normalizedKeywords []string
}

// Verdict is the outcome of checking one exercise against an injury set.
type Verdict struct {
	Avoid   bool
	Injury  string
	Keyword string
	Reason  string
}

type Issue struct {
	Injury     string `json:"injury"`
	ExerciseID string `json:"exerciseId"`
	Keyword    string `json:"keyword"`
	Message    string `json:"message"`
}

type Statistics struct {
	InjuryTypes         int            `json:"injuryTypes"`
	TotalKeywords       int            `json:"totalKeywords"`
	TotalSubstitutes    int            `json:"totalSubstitutes"`
	UniqueSubstitutes   int            `json:"uniqueSubstitutes"`
	KeywordsByInjury    map[string]int `json:"keywordsByInjury"`
	SubstitutesByInjury map[string]int `json:"substitutesByInjury"`
}

// Table is read-only after construction.
type Table struct {
	entries map[string]*Entry
	codes   []string
}

func New(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		e.AvoidKeywords = slices.Clone(e.AvoidKeywords)
		e.SubstituteExerciseIDs = slices.Clone(e.SubstituteExerciseIDs)
		if e.Description == "" {
			e.Description = e.Code
		}
		e.normalizedKeywords = make([]string, 0, len(e.AvoidKeywords))
		for _, kw := range e.AvoidKeywords {
			if n := Normalize(kw); n != "" {
				e.normalizedKeywords = append(e.normalizedKeywords, n)
			}
		}
		if _, exists := t.entries[e.Code]; !exists {
			t.codes = append(t.codes, e.Code)
		}
		t.entries[e.Code] = &e
	}
	slices.Sort(t.codes)
	return t
}

type wireEntry struct {
	DescriptionEN       string   `json:"description_en"`
	Description         string   `json:"description"`
	DescriptionAR       string   `json:"description_ar"`
	AvoidKeywords       []string `json:"avoid_keywords"`
	SubstituteExercises []string `json:"substitute_exercises"`
}

// Load decodes a mapping document keyed by injury code.
func Load(r io.Reader) (*Table, error) {
	var raw map[string]wireEntry
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode injury mappings: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for code, w := range raw {
		entries = append(entries, Entry{
			Code:                  code,
			Description:           firstNonEmpty(w.DescriptionEN, w.Description, w.DescriptionAR, code),
			DescriptionAR:         firstNonEmpty(w.DescriptionAR, w.Description, w.DescriptionEN, code),
			AvoidKeywords:         w.AvoidKeywords,
			SubstituteExerciseIDs: w.SubstituteExercises,
		})
	}
	return New(entries...), nil
}

// LoadFile loads from the first path that can be read and decoded.
func LoadFile(paths ...string) (*Table, error) {
	if len(paths) == 0 {
		return nil, ErrNoMappingSource
	}
	var errs error
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		t, err := Load(f)
		if closeErr := f.Close(); closeErr != nil {
			log.Warnf("close injury mapping file [%s]: %s", p, closeErr)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		log.Infof("loaded %d injury mappings from [%s]", t.Len(), p)
		return t, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoMappingSource, errs)
}

// Normalize lower-cases s and collapses every run of non-letters into one
// underscore, trimming underscores at both ends.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		if !unicode.IsLetter(r) {
			pendingSep = true
			continue
		}
		if pendingSep && sb.Len() > 0 {
			sb.WriteByte('_')
		}
		pendingSep = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// MatchString is the normalized haystack for an exercise.
func MatchString(exerciseID, name string) string {
	return Normalize(exerciseID + "_" + name)
}

// Check tests the exercise against every injury, in caller order, and every
// keyword, in table order. The first match wins.
func (t *Table) Check(exerciseID, name string, injuries []string) Verdict {
	haystack := MatchString(exerciseID, name)
	for _, code := range injuries {
		e, ok := t.entries[code]
		if !ok {
			continue
		}
		for i, kw := range e.normalizedKeywords {
			if strings.Contains(haystack, kw) {
				return Verdict{
					Avoid:   true,
					Injury:  code,
					Keyword: e.AvoidKeywords[i],
					Reason:  fmt.Sprintf("Exercise contains %q which is not recommended for %s", e.AvoidKeywords[i], e.Description),
				}
			}
		}
	}
	return Verdict{}
}

// Substitutes is the ordered union of substitutes of all injuries,
// de-duplicated by first occurrence.
func (t *Table) Substitutes(injuries []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, code := range injuries {
		e, ok := t.entries[code]
		if !ok {
			continue
		}
		for _, id := range e.SubstituteExerciseIDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (t *Table) Get(code string) (Entry, bool) {
	e, ok := t.entries[code]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (t *Table) Description(code string) string {
	if e, ok := t.entries[code]; ok {
		return e.Description
	}
	return code
}

func (t *Table) Codes() []string {
	return slices.Clone(t.codes)
}

func (t *Table) Len() int {
	return len(t.entries)
}

// ValidateSubstitutes reports substitutes that would be avoided by their own injury.
func (t *Table) ValidateSubstitutes() []Issue {
	var issues []Issue
	for _, code := range t.codes {
		e := t.entries[code]
		for _, sub := range e.SubstituteExerciseIDs {
			v := t.Check(sub, "", []string{code})
			if !v.Avoid {
				continue
			}
			issue := Issue{
				Injury:     code,
				ExerciseID: sub,
				Keyword:    v.Keyword,
				Message:    fmt.Sprintf("substitute %q for %s contains avoid keyword %q", sub, code, v.Keyword),
			}
			log.Warnln(issue.Message)
			issues = append(issues, issue)
		}
	}
	return issues
}

func (t *Table) Statistics() Statistics {
	stats := Statistics{
		InjuryTypes:         len(t.entries),
		KeywordsByInjury:    map[string]int{},
		SubstitutesByInjury: map[string]int{},
	}
	unique := map[string]struct{}{}
	for code, e := range t.entries {
		stats.TotalKeywords += len(e.AvoidKeywords)
		stats.TotalSubstitutes += len(e.SubstituteExerciseIDs)
		stats.KeywordsByInjury[code] = len(e.AvoidKeywords)
		stats.SubstitutesByInjury[code] = len(e.SubstituteExerciseIDs)
		for _, s := range e.SubstituteExerciseIDs {
			unique[s] = struct{}{}
		}
	}
	stats.UniqueSubstitutes = len(unique)
	return stats
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
