package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"skillforge/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ContentLoader loads lab and quiz JSONB definitions from Postgres.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadLab(ctx context.Context, labID string) (domain.Lab, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM labs WHERE id=$1`, labID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lab{}, domain.ErrLabNotFound
	}
	if err != nil {
		return domain.Lab{}, fmt.Errorf("load lab: %w", err)
	}
	var lab domain.Lab
	if err := json.Unmarshal(raw, &lab); err != nil {
		return domain.Lab{}, fmt.Errorf("unmarshal lab: %w", err)
	}
	lab.ID = labID
	return lab, nil
}

func (l *ContentLoader) LoadQuiz(ctx context.Context, lessonID string) (domain.Quiz, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT quiz FROM lessons WHERE id=$1`, lessonID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	quiz.LessonID = lessonID
	return quiz, nil
}
