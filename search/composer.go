package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Tolerances widen the date and price filters.
type Tolerances struct {
	// FuzzDays is added on each side of a transaction date.
	FuzzDays int
	// AmountTolerance is the relative width of the price band, 0.25 for ±25%.
	AmountTolerance decimal.Decimal
}

// DefaultTolerances returns a one day window and a 25% price band.
func DefaultTolerances() Tolerances {
	return Tolerances{
		FuzzDays:        1,
		AmountTolerance: decimal.New(25, -2),
	}
}

// Plan is the composed form of a criteria set. When Empty is true a filter
// could not be resolved and the search matches nothing; Criteria must not be
// executed in that case.
type Plan struct {
	Criteria []repository.SelectCriteria
	Empty    bool
}

// Apply ANDs every predicate of the plan onto q.
func (p Plan) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	for _, c := range p.Criteria {
		q = c(q)
	}
	return q
}

func emptyPlan() Plan {
	return Plan{Empty: true}
}

// Composer translates criteria into predicates over the base purchase and
// user queries. It is stateless apart from its lookup directory.
type Composer struct {
	dir Directory
	tol Tolerances
}

// NewComposer returns a Composer resolving foreign filters through dir.
func NewComposer(dir Directory, tol Tolerances) *Composer {
	if tol.FuzzDays < 0 {
		tol.FuzzDays = 0
	}
	if tol.AmountTolerance.IsNegative() {
		tol.AmountTolerance = decimal.Zero
	}
	return &Composer{dir: dir, tol: tol}
}

// Tolerances returns the widening applied by the composer.
func (c *Composer) Tolerances() Tolerances {
	return c.tol
}

// BasePurchaseQuery selects every purchase, newest first.
func BasePurchaseQuery(idb bun.IDB) *bun.SelectQuery {
	return idb.NewSelect().
		Model((*Purchase)(nil)).
		OrderExpr("p.created_at DESC").
		OrderExpr("p.id DESC")
}

// BaseUserQuery selects every user, newest first.
func BaseUserQuery(idb bun.IDB) *bun.SelectQuery {
	return idb.NewSelect().
		Model((*User)(nil)).
		OrderExpr("u.created_at DESC").
		OrderExpr("u.id DESC")
}

// ComposePurchases builds the plan for criteria. Filters that need a foreign
// lookup are resolved first so a miss short-circuits before anything else is
// built. Lookup failures other than a miss are returned as errors.
func (c *Composer) ComposePurchases(ctx context.Context, criteria PurchaseCriteria) (Plan, error) {
	var plan Plan

	if criteria.CreatorEmail != nil {
		sellerID, err := c.dir.SellerIDByEmail(ctx, *criteria.CreatorEmail)
		if errors.Is(err, ErrNotFound) {
			return emptyPlan(), nil
		}
		if err != nil {
			return Plan{}, fmt.Errorf("search: resolve creator email: %w", err)
		}
		plan.Criteria = append(plan.Criteria, bySeller(sellerID))
	}

	if criteria.LicenseKey != nil {
		purchaseID, err := c.dir.PurchaseIDByLicenseKey(ctx, *criteria.LicenseKey)
		if errors.Is(err, ErrNotFound) {
			return emptyPlan(), nil
		}
		if err != nil {
			return Plan{}, fmt.Errorf("search: resolve license key: %w", err)
		}
		plan.Criteria = append(plan.Criteria, byPurchaseID(purchaseID))
	}

	if criteria.Status != nil {
		plan.Criteria = append(plan.Criteria, byStatus(*criteria.Status))
	}
	if criteria.CardType != nil {
		plan.Criteria = append(plan.Criteria, byCardType(*criteria.CardType))
	}
	if criteria.Expiry != nil {
		plan.Criteria = append(plan.Criteria, byExpiry(*criteria.Expiry))
	}
	if criteria.TransactionDate != nil {
		plan.Criteria = append(plan.Criteria, c.byTransactionDate(*criteria.TransactionDate))
	}
	if criteria.Price != nil {
		plan.Criteria = append(plan.Criteria, c.byPrice(*criteria.Price))
	}
	if criteria.Last4 != nil {
		plan.Criteria = append(plan.Criteria, byLast4(*criteria.Last4))
	}
	if criteria.ProductTitleQuery != nil {
		plan.Criteria = append(plan.Criteria, byProductTitle(*criteria.ProductTitleQuery))
	}
	if criteria.Query != nil {
		plan.Criteria = append(plan.Criteria, byPurchaseQuery(*criteria.Query))
	}

	return plan, nil
}

// ComposeUsers builds the plan for a user search.
func (c *Composer) ComposeUsers(_ context.Context, criteria UserCriteria) (Plan, error) {
	var plan Plan
	if criteria.Query != nil {
		plan.Criteria = append(plan.Criteria, byUserQuery(*criteria.Query))
	}
	return plan, nil
}

// DateWindow returns the half-open [from, to) interval matched for date.
func (c *Composer) DateWindow(date time.Time) (time.Time, time.Time) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	from := day.AddDate(0, 0, -c.tol.FuzzDays)
	to := day.AddDate(0, 0, c.tol.FuzzDays+1)
	return from, to
}

// PriceBand returns the inclusive range of cents matched for a major-unit price.
func (c *Composer) PriceBand(price decimal.Decimal) (int64, int64) {
	cents := price.Shift(2)
	one := decimal.NewFromInt(1)
	low := cents.Mul(one.Sub(c.tol.AmountTolerance)).Ceil().IntPart()
	high := cents.Mul(one.Add(c.tol.AmountTolerance)).Floor().IntPart()
	return low, high
}

func (c *Composer) byTransactionDate(date time.Time) repository.SelectCriteria {
	from, to := c.DateWindow(date)
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.created_at >= ?", from).Where("p.created_at < ?", to)
	}
}

func (c *Composer) byPrice(price decimal.Decimal) repository.SelectCriteria {
	low, high := c.PriceBand(price)
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.price_cents BETWEEN ? AND ?", low, high)
	}
}

func bySeller(sellerID int64) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.seller_id = ?", sellerID)
	}
}

func byPurchaseID(id int64) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.id = ?", id)
	}
}

func byStatus(status PurchaseStatus) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		switch status {
		case StatusChargeback:
			return q.Where("p.chargeback_date IS NOT NULL")
		case StatusRefunded:
			return q.Where("p.stripe_refunded = ?", true)
		default:
			return q.Where("p.purchase_state = ?", string(status))
		}
	}
}

func byCardType(ct CardType) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.card_type = ?", string(ct))
	}
}

func byExpiry(expiry CardExpiry) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.card_expiry_month = ?", expiry.Month).
			Where("p.card_expiry_year = ?", expiry.Year)
	}
}

func byLast4(last4 string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("p.card_visual LIKE ?", "%"+last4)
	}
}

func byProductTitle(title string) repository.SelectCriteria {
	pattern := "%" + strings.ToLower(title) + "%"
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Join("JOIN products AS pr ON pr.id = p.product_id").
			Where("LOWER(pr.name) LIKE ?", pattern)
	}
}

// byPurchaseQuery matches the term against the buyer email, either side of a
// gift, the external id and the masked card. Each gift path is an id
// containment over its own subquery, so the group is the union of the paths.
func byPurchaseQuery(term string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		db := q.DB()
		gifter := db.NewSelect().
			Model((*Gift)(nil)).
			ColumnExpr("g.gifter_purchase_id").
			Where("g.gifter_email = ?", term)
		giftee := db.NewSelect().
			Model((*Gift)(nil)).
			ColumnExpr("g.giftee_purchase_id").
			Where("g.giftee_email = ?", term)

		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("p.email = ?", term).
				WhereOr("p.id IN (?)", gifter).
				WhereOr("p.id IN (?)", giftee).
				WhereOr("p.external_id = ?", term).
				WhereOr("p.card_visual = ?", term)
		})
	}
}

func byUserQuery(term string) repository.SelectCriteria {
	pattern := "%" + strings.ToLower(term) + "%"
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("u.email = ?", term).
				WhereOr("u.external_id = ?", term).
				WhereOr("LOWER(u.name) LIKE ?", pattern)
		})
	}
}
