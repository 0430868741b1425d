package migrations

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"open-trivia-rounds/internal/infra/memory"
)

//go:embed 0001_create_categories.sql
var createCategoriesSQL string

var Migrations = migrate.NewMigrations()

type categoryRow struct {
	bun.BaseModel `bun:"table:categories"`

	ID   int    `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			if _, err := db.ExecContext(ctx, createCategoriesSQL); err != nil {
				return err
			}
			return seedCategories(ctx, db)
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS categories`)
			return err
		},
	)
}

// seedCategories inserts the bundled catalog, keeping rows that already exist.
func seedCategories(ctx context.Context, db *bun.DB) error {
	cats, err := memory.DefaultCatalog()
	if err != nil {
		return err
	}
	rows := make([]categoryRow, 0, len(cats))
	for _, c := range cats {
		rows = append(rows, categoryRow{ID: c.ID, Name: c.Name})
	}
	if _, err := db.NewInsert().Model(&rows).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	return nil
}
