package search

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// ErrNotFound is returned by a Directory when a lookup has no match.
var ErrNotFound = errors.New("search: record not found")

// Directory resolves filters that reference records outside the purchase row.
type Directory interface {
	SellerIDByEmail(ctx context.Context, email string) (int64, error)
	PurchaseIDByLicenseKey(ctx context.Context, key string) (int64, error)
}

// DBDirectory is a Directory backed by the users and licenses tables.
type DBDirectory struct {
	db bun.IDB
}

// NewDirectory returns a Directory reading from db.
func NewDirectory(db bun.IDB) *DBDirectory {
	return &DBDirectory{db: db}
}

// SellerIDByEmail returns the id of the user with the given email, ignoring case.
func (d *DBDirectory) SellerIDByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := d.db.NewSelect().
		Model((*User)(nil)).
		ColumnExpr("u.id").
		Where("LOWER(u.email) = ?", strings.ToLower(strings.TrimSpace(email))).
		OrderExpr("u.id ASC").
		Limit(1).
		Scan(ctx, &id)
	return lookupResult(id, err, "seller by email")
}

// PurchaseIDByLicenseKey returns the purchase the license key was issued for.
func (d *DBDirectory) PurchaseIDByLicenseKey(ctx context.Context, key string) (int64, error) {
	var id int64
	err := d.db.NewSelect().
		Model((*License)(nil)).
		ColumnExpr("l.purchase_id").
		Where("l.serial = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx, &id)
	return lookupResult(id, err, "purchase by license key")
}

func lookupResult(id int64, err error, what string) (int64, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("search: lookup %s: %w", what, err)
	}
	return id, nil
}
