package search

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus is the admin-facing purchase state filter.
type PurchaseStatus string

const (
	StatusSuccessful PurchaseStatus = "successful"
	StatusFailed     PurchaseStatus = "failed"
	StatusNotCharged PurchaseStatus = "not_charged"
	StatusChargeback PurchaseStatus = "chargeback"
	StatusRefunded   PurchaseStatus = "refunded"
)

// PurchaseStatuses lists the accepted purchase_status values.
var PurchaseStatuses = []PurchaseStatus{StatusSuccessful, StatusFailed, StatusNotCharged, StatusChargeback, StatusRefunded}

// ParsePurchaseStatus reports whether s names a known status.
func ParsePurchaseStatus(s string) (PurchaseStatus, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, status := range PurchaseStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// CardType is a processor card brand.
type CardType string

const (
	CardVisa       CardType = "visa"
	CardMastercard CardType = "mastercard"
	CardAmex       CardType = "amex"
	CardDiscover   CardType = "discover"
	CardJCB        CardType = "jcb"
	CardDiners     CardType = "diners"
	CardUnionPay   CardType = "unionpay"
)

var cardTypeAliases = map[string]CardType{
	"visa":             CardVisa,
	"mastercard":       CardMastercard,
	"master_card":      CardMastercard,
	"amex":             CardAmex,
	"american_express": CardAmex,
	"discover":         CardDiscover,
	"jcb":              CardJCB,
	"diners":           CardDiners,
	"diners_club":      CardDiners,
	"unionpay":         CardUnionPay,
	"union_pay":        CardUnionPay,
}

// ParseCardType normalizes brand names such as "American Express" to their stored form.
func ParseCardType(s string) (CardType, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	ct, ok := cardTypeAliases[normalized]
	return ct, ok
}

// CardExpiry is a card expiry month/year pair. Year has four digits.
type CardExpiry struct {
	Month int
	Year  int
}

// PurchaseCriteria is the set of optional purchase filters. A nil field is
// not applied; the zero value matches every purchase, newest first.
type PurchaseCriteria struct {
	Query             *string
	ProductTitleQuery *string
	CreatorEmail      *string
	LicenseKey        *string
	Status            *PurchaseStatus
	// TransactionDate is a calendar date at UTC midnight.
	TransactionDate *time.Time
	Last4           *string
	CardType        *CardType
	// Price is in major currency units.
	Price  *decimal.Decimal
	Expiry *CardExpiry
}

// IsZero reports whether no filter is set.
func (c PurchaseCriteria) IsZero() bool {
	return c.Query == nil &&
		c.ProductTitleQuery == nil &&
		c.CreatorEmail == nil &&
		c.LicenseKey == nil &&
		c.Status == nil &&
		c.TransactionDate == nil &&
		c.Last4 == nil &&
		c.CardType == nil &&
		c.Price == nil &&
		c.Expiry == nil
}

// UserCriteria is the set of optional user filters.
type UserCriteria struct {
	Query *string
}

// IsZero reports whether no filter is set.
func (c UserCriteria) IsZero() bool {
	return c.Query == nil
}
