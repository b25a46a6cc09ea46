package search

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-admin-search/internal/dbopen"
)

// Purchase is a buyer's purchase of a product.
type Purchase struct {
	bun.BaseModel `bun:"table:purchases,alias:p"`

	ID              int64      `bun:"id,pk,autoincrement" json:"id"`
	ExternalID      string     `bun:"external_id,notnull" json:"external_id"`
	Email           string     `bun:"email,notnull" json:"email"`
	SellerID        int64      `bun:"seller_id,notnull" json:"seller_id"`
	ProductID       int64      `bun:"product_id,notnull" json:"product_id"`
	PriceCents      int64      `bun:"price_cents,notnull" json:"price_cents"`
	PurchaseState   string     `bun:"purchase_state,notnull" json:"purchase_state"`
	ChargebackDate  *time.Time `bun:"chargeback_date,nullzero" json:"chargeback_date,omitempty"`
	StripeRefunded  bool       `bun:"stripe_refunded,notnull" json:"stripe_refunded"`
	CardType        string     `bun:"card_type" json:"card_type,omitempty"`
	CardVisual      string     `bun:"card_visual" json:"card_visual,omitempty"`
	CardExpiryMonth int        `bun:"card_expiry_month" json:"card_expiry_month,omitempty"`
	CardExpiryYear  int        `bun:"card_expiry_year" json:"card_expiry_year,omitempty"`
	Country         string     `bun:"country" json:"country,omitempty"`
	State           string     `bun:"state" json:"state,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// Product is a seller's listing.
type Product struct {
	bun.BaseModel `bun:"table:products,alias:pr"`

	ID     int64  `bun:"id,pk,autoincrement" json:"id"`
	UserID int64  `bun:"user_id,notnull" json:"user_id"`
	Name   string `bun:"name,notnull" json:"name"`
}

// Gift links the purchase made by a gifter to the one delivered to the giftee.
type Gift struct {
	bun.BaseModel `bun:"table:gifts,alias:g"`

	ID               int64  `bun:"id,pk,autoincrement" json:"id"`
	GifterEmail      string `bun:"gifter_email,notnull" json:"gifter_email"`
	GifteeEmail      string `bun:"giftee_email,notnull" json:"giftee_email"`
	GifterPurchaseID int64  `bun:"gifter_purchase_id" json:"gifter_purchase_id"`
	GifteePurchaseID int64  `bun:"giftee_purchase_id" json:"giftee_purchase_id"`
}

// License is a license key issued for a purchase.
type License struct {
	bun.BaseModel `bun:"table:licenses,alias:l"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	Serial     string `bun:"serial,notnull,unique" json:"serial"`
	PurchaseID int64  `bun:"purchase_id,notnull" json:"purchase_id"`
}

// User is a seller or buyer account.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            int64     `bun:"id,pk,autoincrement" json:"id"`
	ExternalID    string    `bun:"external_id,notnull" json:"external_id"`
	Email         string    `bun:"email,notnull,unique" json:"email"`
	Name          string    `bun:"name" json:"name"`
	UserRiskState string    `bun:"user_risk_state,notnull" json:"user_risk_state"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Balance is an amount owed to a user for one payout period.
type Balance struct {
	bun.BaseModel `bun:"table:balances,alias:b"`

	ID          int64  `bun:"id,pk,autoincrement" json:"id"`
	UserID      int64  `bun:"user_id,notnull" json:"user_id"`
	AmountCents int64  `bun:"amount_cents,notnull" json:"amount_cents"`
	State       string `bun:"state,notnull" json:"state"`
}

// Models lists every table the search and reporting queries read, in
// creation order.
func Models() []any {
	return []any{
		(*User)(nil),
		(*Product)(nil),
		(*Purchase)(nil),
		(*Gift)(nil),
		(*License)(nil),
		(*Balance)(nil),
	}
}

// Indexes lists the secondary indexes the search filters rely on.
func Indexes() []dbopen.Index {
	return []dbopen.Index{
		{Model: (*Purchase)(nil), Name: "idx_purchases_created_at", Columns: []string{"created_at", "id"}},
		{Model: (*Purchase)(nil), Name: "idx_purchases_email", Columns: []string{"email"}},
		{Model: (*Purchase)(nil), Name: "idx_purchases_seller_id", Columns: []string{"seller_id"}},
		{Model: (*Purchase)(nil), Name: "idx_purchases_external_id", Columns: []string{"external_id"}},
		{Model: (*Purchase)(nil), Name: "idx_purchases_card_visual", Columns: []string{"card_visual"}},
		{Model: (*Gift)(nil), Name: "idx_gifts_gifter_email", Columns: []string{"gifter_email"}},
		{Model: (*Gift)(nil), Name: "idx_gifts_giftee_email", Columns: []string{"giftee_email"}},
		{Model: (*Balance)(nil), Name: "idx_balances_user_id_state", Columns: []string{"user_id", "state"}},
		{Model: (*User)(nil), Name: "idx_users_risk_state_created_at", Columns: []string{"user_risk_state", "created_at"}},
	}
}
