package exercisecatalog

import (
	"context"
)

// Exercise is the display data of one exercise known to the catalog.
type Exercise struct {
	ID          string   `json:"id" bson:"_id"`
	Name        string   `json:"name" bson:"name"`
	NameAR      string   `json:"nameAr,omitempty" bson:"name_ar,omitempty"`
	MuscleGroup string   `json:"muscleGroup,omitempty" bson:"muscle_group,omitempty"`
	Muscles     []string `json:"muscles,omitempty" bson:"muscles,omitempty"`
	Equipment   []string `json:"equipment,omitempty" bson:"equipment,omitempty"`
	VideoID     string   `json:"videoId,omitempty" bson:"video_id,omitempty"`
	Images      []string `json:"images,omitempty" bson:"images,omitempty"`
}

//go:generate mockgen -source=$GOFILE -destination=mocks_test.go -package=exercisecatalog_test

// Lookup resolves exercise ids. An unknown id yields (nil, nil).
type Lookup interface {
	GetByID(ctx context.Context, exerciseID string) (*Exercise, error)
}

// Chain tries each lookup in order and returns the first hit.
type Chain []Lookup

func (c Chain) GetByID(ctx context.Context, exerciseID string) (*Exercise, error) {
	for _, l := range c {
		ex, err := l.GetByID(ctx, exerciseID)
		if err != nil {
			return nil, err
		}
		if ex != nil {
			return ex, nil
		}
	}
	return nil, nil
}

// Nop never finds anything.
type Nop struct{}

func (Nop) GetByID(context.Context, string) (*Exercise, error) {
	return nil, nil
}
