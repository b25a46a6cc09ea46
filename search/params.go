package search

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/goliatone/go-admin-search/paginate"
)

// Warning messages surfaced when a parameter is dropped.
const (
	WarnTransactionDate = "Please enter the date using the MM/DD/YYYY format."
	WarnLast4           = "Please enter exactly the last 4 digits of the card."
	WarnPrice           = "Please enter the price as a positive amount, for example 9.99."
	WarnExpiry          = "Please enter the expiry date using the MM/YY format."
)

// TransactionDateLayout is the boundary format of transaction_date. Single
// digit months and days are accepted as well.
const TransactionDateLayout = "1/2/2006"

var (
	last4Pattern  = regexp.MustCompile(`^\d{4}$`)
	expiryPattern = regexp.MustCompile(`^(\d{1,2})/?(\d{2}|\d{4})$`)
)

// ParsePurchaseParams converts request parameters into PurchaseCriteria and a
// page request. Invalid fields are dropped and described in the returned
// warnings; parsing never fails.
func ParsePurchaseParams(values url.Values) (PurchaseCriteria, paginate.Request, []string) {
	var (
		criteria PurchaseCriteria
		warnings []string
	)

	criteria.Query = optionalText(values.Get("query"))
	criteria.ProductTitleQuery = optionalText(values.Get("product_title_query"))
	criteria.CreatorEmail = optionalText(values.Get("creator_email"))
	criteria.LicenseKey = optionalText(values.Get("license_key"))

	if raw := optionalText(values.Get("purchase_status")); raw != nil {
		if status, ok := ParsePurchaseStatus(*raw); ok {
			criteria.Status = &status
		} else {
			warnings = append(warnings, fmt.Sprintf("Unknown purchase status %q.", *raw))
		}
	}

	if raw := optionalText(values.Get("transaction_date")); raw != nil {
		if date, err := ParseTransactionDate(*raw); err == nil {
			criteria.TransactionDate = &date
		} else {
			warnings = append(warnings, WarnTransactionDate)
		}
	}

	if raw := optionalText(values.Get("last_4")); raw != nil {
		if err := validation.Validate(*raw, validation.Match(last4Pattern)); err == nil {
			criteria.Last4 = raw
		} else {
			warnings = append(warnings, WarnLast4)
		}
	}

	if raw := optionalText(values.Get("card_type")); raw != nil {
		if ct, ok := ParseCardType(*raw); ok {
			criteria.CardType = &ct
		} else {
			warnings = append(warnings, fmt.Sprintf("Unknown card type %q.", *raw))
		}
	}

	if raw := optionalText(values.Get("price")); raw != nil {
		if price, err := ParsePrice(*raw); err == nil {
			criteria.Price = &price
		} else {
			warnings = append(warnings, WarnPrice)
		}
	}

	if raw := optionalText(values.Get("expiry_date")); raw != nil {
		if expiry, err := ParseCardExpiry(*raw); err == nil {
			criteria.Expiry = &expiry
		} else {
			warnings = append(warnings, WarnExpiry)
		}
	}

	return criteria, parsePage(values), warnings
}

// ParseUserParams converts request parameters into UserCriteria and a page request.
func ParseUserParams(values url.Values) (UserCriteria, paginate.Request, []string) {
	return UserCriteria{Query: optionalText(values.Get("query"))}, parsePage(values), nil
}

// ParseTransactionDate parses an MM/DD/YYYY date into UTC midnight.
func ParseTransactionDate(s string) (time.Time, error) {
	return time.ParseInLocation(TransactionDateLayout, strings.TrimSpace(s), time.UTC)
}

// ParsePrice parses a major-unit amount such as "$1,299.50".
func ParsePrice(s string) (decimal.Decimal, error) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !price.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("price must be positive: %s", s)
	}
	return price, nil
}

// ParseCardExpiry accepts MM/YY, MM/YYYY and MMYY, ignoring whitespace.
// Two-digit years are in the 2000s.
func ParseCardExpiry(s string) (CardExpiry, error) {
	compact := strings.Join(strings.Fields(s), "")
	m := expiryPattern.FindStringSubmatch(compact)
	if m == nil {
		return CardExpiry{}, fmt.Errorf("invalid expiry date %q", s)
	}

	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if len(m[2]) == 2 {
		year += 2000
	}

	if err := validation.Validate(month, validation.Required, validation.Min(1), validation.Max(12)); err != nil {
		return CardExpiry{}, fmt.Errorf("invalid expiry month %d: %w", month, err)
	}
	return CardExpiry{Month: month, Year: year}, nil
}

func parsePage(values url.Values) paginate.Request {
	req := paginate.Request{}
	if page, err := strconv.Atoi(strings.TrimSpace(values.Get("page"))); err == nil {
		req.Page = page
	}
	if limit, err := strconv.Atoi(strings.TrimSpace(values.Get("per_page"))); err == nil {
		req.Limit = limit
	}
	return req
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
