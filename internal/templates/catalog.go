package templates

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/2beens/fitplan/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type Rejection struct {
	TemplateID string `json:"templateId,omitempty"`
	Source     string `json:"source"`
	Reason     string `json:"reason"`
}

type LoadReport struct {
	Loaded   int         `json:"loaded"`
	Rejected []Rejection `json:"rejected"`
	LoadedAt time.Time   `json:"loadedAt"`
}

type Filters struct {
	Type         Type
	Goal         string
	Location     string
	TrainingDays int
	Weeks        int
	MinWeeks     int
	MaxWeeks     int
}

type Statistics struct {
	Total          int            `json:"total"`
	ByType         map[Type]int   `json:"byType"`
	ByGoal         map[string]int `json:"byGoal"`
	ByLocation     map[string]int `json:"byLocation"`
	ByTrainingDays map[int]int    `json:"byTrainingDays"`
	ByGoalLocation map[string]int `json:"byGoalLocation"`
}

// index is never mutated once published.
type index struct {
	all    []*Template
	byID   map[string]*Template
	byType map[Type][]*Template
	byKey  map[string][]*Template
	report LoadReport
}

func emptyIndex() *index {
	return &index{
		byID:   map[string]*Template{},
		byType: map[Type][]*Template{},
		byKey:  map[string][]*Template{},
	}
}

func compositeKey(goal, location string, trainingDays int) string {
	return goal + "|" + location + "|" + strconv.Itoa(trainingDays)
}

// Catalog is the process-wide template index. Reads are lock-free; Load
// swaps in a completely built index.
type Catalog struct {
	loader Loader
	idx    atomic.Pointer[index]
}

func NewCatalog(loader Loader) *Catalog {
	c := &Catalog{loader: loader}
	c.idx.Store(emptyIndex())
	return c
}

// Load reads every document from the loader and replaces the index.
// Invalid documents are logged and excluded. When the loader itself
// fails the previous index stays in place.
func (c *Catalog) Load(ctx context.Context) (_ LoadReport, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "catalog.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if c.loader == nil {
		return LoadReport{}, errors.New("catalog has no loader")
	}

	docs, err := c.loader.Load(ctx)
	if err != nil {
		return LoadReport{}, fmt.Errorf("load template documents: %w", err)
	}

	next := emptyIndex()
	for _, doc := range docs {
		t, err := Decode(doc)
		if err != nil {
			next.reject(doc.Source, err)
			continue
		}
		if _, exists := next.byID[t.ID]; exists {
			next.reject(doc.Source, &ValidationError{
				TemplateID: t.ID,
				Source:     doc.Source,
				Err:        fmt.Errorf("duplicate plan_id %s", t.ID),
			})
			continue
		}
		next.add(t)
	}
	next.report.Loaded = len(next.all)
	next.report.LoadedAt = time.Now()

	c.idx.Store(next)

	span.SetAttributes(
		attribute.Int("templates.loaded", next.report.Loaded),
		attribute.Int("templates.rejected", len(next.report.Rejected)),
	)
	log.Infof("template catalog loaded: %d templates, %d rejected", next.report.Loaded, len(next.report.Rejected))

	return next.report, nil
}

// Reload is Load under the name callers use after startup.
func (c *Catalog) Reload(ctx context.Context) (LoadReport, error) {
	return c.Load(ctx)
}

func (ix *index) reject(source string, err error) {
	r := Rejection{Source: source, Reason: err.Error()}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		r.TemplateID = vErr.TemplateID
	}
	log.Errorf("template excluded: %s", err)
	ix.report.Rejected = append(ix.report.Rejected, r)
}

func (ix *index) add(t *Template) {
	ix.all = append(ix.all, t)
	ix.byID[t.ID] = t
	ix.byType[t.Type] = append(ix.byType[t.Type], t)
	key := compositeKey(t.Goal, t.Location, t.TrainingDays)
	ix.byKey[key] = append(ix.byKey[key], t)
}

func (c *Catalog) current() *index {
	return c.idx.Load()
}

func (c *Catalog) GetByID(id string) (*Template, bool) {
	t, ok := c.current().byID[id]
	return t, ok
}

// GetByType returns templates of the type in insertion order.
func (c *Catalog) GetByType(typ Type) []*Template {
	return clonePtrs(c.current().byType[typ])
}

func (c *Catalog) ByGoalLocationDays(goal, location string, trainingDays int) []*Template {
	return clonePtrs(c.current().byKey[compositeKey(goal, location, trainingDays)])
}

func (c *Catalog) All() []*Template {
	return clonePtrs(c.current().all)
}

func (c *Catalog) Len() int {
	return len(c.current().all)
}

func (c *Catalog) LastLoad() LoadReport {
	return c.current().report
}

// Search applies all non-zero filters conjunctively; results keep insertion order.
func (c *Catalog) Search(f Filters) []*Template {
	var out []*Template
	for _, t := range c.current().all {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Goal != "" && !t.SupportsGoal(f.Goal) {
			continue
		}
		if f.Location != "" && !t.SupportsLocation(f.Location) {
			continue
		}
		if f.TrainingDays > 0 && t.TrainingDays != f.TrainingDays {
			continue
		}
		if f.Weeks > 0 && t.DurationWeeks != f.Weeks {
			continue
		}
		if f.MinWeeks > 0 && t.DurationWeeks < f.MinWeeks {
			continue
		}
		if f.MaxWeeks > 0 && t.DurationWeeks > f.MaxWeeks {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (c *Catalog) Summaries(f Filters) []Summary {
	found := c.Search(f)
	out := make([]Summary, 0, len(found))
	for _, t := range found {
		out = append(out, t.Summary())
	}
	return out
}

func (c *Catalog) Statistics() Statistics {
	all := c.current().all
	stats := Statistics{
		Total:          len(all),
		ByType:         map[Type]int{},
		ByGoal:         map[string]int{},
		ByLocation:     map[string]int{},
		ByTrainingDays: map[int]int{},
		ByGoalLocation: map[string]int{},
	}
	for _, t := range all {
		stats.ByType[t.Type]++
		stats.ByTrainingDays[t.TrainingDays]++
		if t.Goal != "" {
			stats.ByGoal[t.Goal]++
		}
		if t.Location != "" {
			stats.ByLocation[t.Location]++
		}
		if t.Goal != "" && t.Location != "" {
			stats.ByGoalLocation[t.Goal+"_"+t.Location]++
		}
	}
	return stats
}

func clonePtrs(in []*Template) []*Template {
	if len(in) == 0 {
		return nil
	}
	out := make([]*Template, len(in))
	copy(out, in)
	return out
}
