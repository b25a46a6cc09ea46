// Package review computes the list of not-yet-reviewed users holding unpaid
// balances and publishes it as a snapshot for the admin pages.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-admin-search/snapshot"
)

// SnapshotKey is where the document is published.
const SnapshotKey = "admin:unreviewed_users_data"

// JobName names the refresher and its lock.
const JobName = "unreviewed_users"

// RiskStateNotReviewed marks users nobody has reviewed yet.
const RiskStateNotReviewed = "not_reviewed"

// BalanceStateUnpaid marks balances not yet paid out.
const BalanceStateUnpaid = "unpaid"

// UnreviewedUser is one row of the snapshot.
type UnreviewedUser struct {
	ID                 int64     `bun:"id" json:"id"`
	ExternalID         string    `bun:"external_id" json:"external_id"`
	Email              string    `bun:"email" json:"email"`
	Name               string    `bun:"name" json:"name"`
	CreatedAt          time.Time `bun:"created_at" json:"created_at"`
	UnpaidBalanceCents int64     `bun:"unpaid_balance_cents" json:"unpaid_balance_cents"`
}

// UnreviewedUsers is the published document.
type UnreviewedUsers struct {
	Users      []UnreviewedUser `json:"users"`
	TotalCount int              `json:"total_count"`
	CutoffDate string           `json:"cutoff_date"`
	CachedAt   time.Time        `json:"cached_at"`
}

// groupedQuery selects qualifying users with their unpaid total, unordered
// and uncapped.
func groupedQuery(idb bun.IDB, s Settings) *bun.SelectQuery {
	return idb.NewSelect().
		TableExpr("users AS u").
		ColumnExpr("u.id, u.external_id, u.email, u.name, u.created_at").
		ColumnExpr("SUM(b.amount_cents) AS unpaid_balance_cents").
		Join("JOIN balances AS b ON b.user_id = u.id").
		Where("u.user_risk_state = ?", RiskStateNotReviewed).
		Where("u.created_at >= ?", s.CutoffDate).
		Where("b.state = ?", BalanceStateUnpaid).
		GroupExpr("u.id, u.external_id, u.email, u.name, u.created_at").
		Having("SUM(b.amount_cents) > ?", s.MinBalanceCents)
}

// Compute builds the document: at most s.MaxRows users ordered by unpaid
// balance, largest first, and the uncapped number of qualifying users.
func Compute(ctx context.Context, idb bun.IDB, s Settings, now time.Time) (UnreviewedUsers, error) {
	users := make([]UnreviewedUser, 0)
	err := groupedQuery(idb, s).
		OrderExpr("unpaid_balance_cents DESC").
		OrderExpr("u.id ASC").
		Limit(s.MaxRows).
		Scan(ctx, &users)
	if err != nil {
		return UnreviewedUsers{}, fmt.Errorf("review: select users: %w", err)
	}

	var total int
	err = idb.NewSelect().
		TableExpr("(?) AS grouped", groupedQuery(idb, s)).
		ColumnExpr("COUNT(*)").
		Scan(ctx, &total)
	if err != nil {
		return UnreviewedUsers{}, fmt.Errorf("review: count users: %w", err)
	}

	if users == nil {
		users = []UnreviewedUser{}
	}
	for i := range users {
		users[i].CreatedAt = users[i].CreatedAt.UTC()
	}

	return UnreviewedUsers{
		Users:      users,
		TotalCount: total,
		CutoffDate: s.CutoffDate.Format(DateLayout),
		CachedAt:   now.UTC(),
	}, nil
}

// NewRefresher returns the refresher that resolves settings once per run,
// computes the document and publishes it under SnapshotKey.
func NewRefresher(idb bun.IDB, store snapshot.Store, resolver *SettingsResolver, now func() time.Time, logger *zap.Logger, opts ...snapshot.RefresherOption) *snapshot.Refresher[UnreviewedUsers] {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	compute := func(ctx context.Context) (UnreviewedUsers, error) {
		settings, err := resolver.Resolve(ctx)
		if err != nil {
			return UnreviewedUsers{}, err
		}
		doc, err := Compute(ctx, idb, settings, now())
		if err != nil {
			return UnreviewedUsers{}, err
		}
		logger.Debug("unreviewed users computed",
			zap.String("cutoff_date", doc.CutoffDate),
			zap.Int("rows", len(doc.Users)),
			zap.Int("total_count", doc.TotalCount),
		)
		return doc, nil
	}

	opts = append([]snapshot.RefresherOption{snapshot.WithLogger(logger)}, opts...)
	return snapshot.NewRefresher(JobName, compute, snapshot.NewPublisher[UnreviewedUsers](store, SnapshotKey), opts...)
}

// NewReader returns a reader for the published document.
func NewReader(store snapshot.Store) *snapshot.Reader[UnreviewedUsers] {
	return snapshot.NewReader[UnreviewedUsers](store, SnapshotKey)
}
