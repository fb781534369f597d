package exercisecatalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/2beens/fitplan/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

type PsqlRepo struct {
	db *pgxpool.Pool
}

func NewPsqlRepo(db *pgxpool.Pool) *PsqlRepo {
	return &PsqlRepo{
		db: db,
	}
}

func (r *PsqlRepo) GetByID(ctx context.Context, exerciseID string) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercisecatalog.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("exercise.id", exerciseID))

	var ex Exercise
	err = r.db.QueryRow(
		ctx,
		`
			SELECT
			    id, name, name_ar, muscle_group, muscles, equipment, video_id
			FROM exercise_type
			WHERE id = $1
		`,
		exerciseID,
	).Scan(
		&ex.ID,
		&ex.Name,
		&ex.NameAR,
		&ex.MuscleGroup,
		&ex.Muscles,
		&ex.Equipment,
		&ex.VideoID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("exercise type [query row]: %w", err)
	}

	ex.Images, err = r.images(ctx, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("exercise type images: %w", err)
	}

	return &ex, nil
}

func (r *PsqlRepo) images(ctx context.Context, exerciseID string) (_ []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercisecatalog.get_images")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`
			SELECT image_path
			FROM exercise_image
			WHERE exercise_id = $1
			ORDER BY id
		`,
		exerciseID,
	)
	if err != nil {
		return nil, fmt.Errorf("exercise images [query]: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("exercise images [rows scan]: %w", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("exercise images [rows error]: %w", err)
	}

	return paths, nil
}
