package report

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DateLayout is the layout of report range dates.
const DateLayout = "2006-01-02"

// Request asks for the sales of one country over an inclusive date range.
type Request struct {
	CountryCode string `json:"country_code"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

// Normalize trims the fields and upper-cases the country code.
func (r Request) Normalize() Request {
	return Request{
		CountryCode: strings.ToUpper(strings.TrimSpace(r.CountryCode)),
		StartDate:   strings.TrimSpace(r.StartDate),
		EndDate:     strings.TrimSpace(r.EndDate),
	}
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CountryCode, validation.Required, is.CountryCode2),
		validation.Field(&r.StartDate, validation.Required, validation.Date(DateLayout)),
		validation.Field(&r.EndDate, validation.Required, validation.Date(DateLayout), validation.By(r.notBeforeStart)),
	)
}

func (r Request) notBeforeStart(value any) error {
	start, err := time.Parse(DateLayout, r.StartDate)
	if err != nil {
		// reported on start_date
		return nil
	}
	end, _ := time.Parse(DateLayout, value.(string))
	if end.Before(start) {
		return errors.New("must not be before start_date")
	}
	return nil
}

// Window returns the half-open UTC interval covering both range days.
func (r Request) Window() (from, to time.Time, err error) {
	from, err = time.ParseInLocation(DateLayout, r.StartDate, time.UTC)
	if err != nil {
		return from, to, err
	}
	end, err := time.ParseInLocation(DateLayout, r.EndDate, time.UTC)
	if err != nil {
		return from, to, err
	}
	return from, end.AddDate(0, 0, 1), nil
}
