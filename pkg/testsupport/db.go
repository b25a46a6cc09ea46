package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-admin-search/internal/dbopen"
	"github.com/goliatone/go-admin-search/search"
)

// OpenDB opens a private in-memory SQLite database with the search schema.
// The database is closed when the test ends.
func OpenDB(t testing.TB) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := dbopen.OpenMemory(ctx)
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := dbopen.CreateSchema(ctx, db, search.Models(), search.Indexes()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return db
}

// Insert writes each model, a pointer to a struct or to a slice of structs.
func Insert(t testing.TB, db bun.IDB, models ...any) {
	t.Helper()

	for _, model := range models {
		if _, err := db.NewInsert().Model(model).Exec(context.Background()); err != nil {
			t.Fatalf("failed to insert %T: %v", model, err)
		}
	}
}

// Date returns midnight UTC of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// IDs returns the ids of purchases in order.
func IDs(purchases []search.Purchase) []int64 {
	ids := make([]int64, len(purchases))
	for i, p := range purchases {
		ids[i] = p.ID
	}
	return ids
}
