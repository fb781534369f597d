package exercisecatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

type wireExercise struct {
	ID          string   `json:"id"`
	ExID        string   `json:"ex_id"`
	NameEN      string   `json:"name_en"`
	Name        string   `json:"name"`
	NameAR      string   `json:"name_ar"`
	MuscleGroup string   `json:"muscle_group"`
	Muscles     []string `json:"muscles"`
	Equip       []string `json:"equip"`
	Equipment   []string `json:"equipment"`
	VideoID     string   `json:"video_id"`
	Images      []string `json:"images"`
}

// FileCatalog is an in-memory catalog decoded from a JSON document.
type FileCatalog struct {
	exercises map[string]Exercise
}

func NewFileCatalog(exercises ...Exercise) *FileCatalog {
	c := &FileCatalog{exercises: make(map[string]Exercise, len(exercises))}
	for _, ex := range exercises {
		c.exercises[ex.ID] = ex
	}
	return c
}

// LoadFileCatalog accepts {"exercises": [...]} or a bare list.
func LoadFileCatalog(r io.Reader) (*FileCatalog, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read exercise catalog: %w", err)
	}

	var list []wireExercise
	if err := json.Unmarshal(raw, &list); err != nil {
		var doc struct {
			Exercises []wireExercise `json:"exercises"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode exercise catalog: %w", err)
		}
		list = doc.Exercises
	}

	var exercises []Exercise
	for _, w := range list {
		ex := Exercise{
			ID:          w.ID,
			Name:        w.NameEN,
			NameAR:      w.NameAR,
			MuscleGroup: w.MuscleGroup,
			Muscles:     w.Muscles,
			Equipment:   w.Equip,
			VideoID:     w.VideoID,
			Images:      w.Images,
		}
		if ex.ID == "" {
			ex.ID = w.ExID
		}
		if ex.Name == "" {
			ex.Name = w.Name
		}
		if ex.Equipment == nil {
			ex.Equipment = w.Equipment
		}
		if ex.ID == "" {
			continue
		}
		exercises = append(exercises, ex)
	}
	return NewFileCatalog(exercises...), nil
}

func LoadFileCatalogPath(path string) (*FileCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exercise catalog: %w", err)
	}
	defer f.Close()
	return LoadFileCatalog(f)
}

func (c *FileCatalog) GetByID(_ context.Context, exerciseID string) (*Exercise, error) {
	ex, ok := c.exercises[exerciseID]
	if !ok {
		return nil, nil
	}
	return &ex, nil
}

func (c *FileCatalog) Len() int {
	return len(c.exercises)
}
