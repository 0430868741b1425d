package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"open-trivia-rounds/internal/domain"
)

// CategoryLoader reads the category catalog from Postgres.
type CategoryLoader struct {
	pool *pgxpool.Pool
}

func NewCategoryLoader(pool *pgxpool.Pool) *CategoryLoader {
	return &CategoryLoader{pool: pool}
}

func (l *CategoryLoader) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(cats) == 0 {
		return nil, &domain.FetchError{Op: "categories", Err: domain.ErrNoCategoriesAvailable}
	}
	return cats, nil
}
