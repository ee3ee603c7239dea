package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Food          Category = "Food"
	Transport     Category = "Transport"
	Entertainment Category = "Entertainment"
	Utilities     Category = "Utilities"
	Investments   Category = "Investments"
	Other         Category = "Other"
)

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	INR Currency = "INR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
)

type (
	Category string
	Currency string

	// Identity is a normalized user name. It is the only key of a ledger.
	Identity string

	// Date is a calendar day in UTC. Time-of-day is always zero.
	Date struct {
		time.Time
	}

	// Record is a single expense entry. It has no identity of its own:
	// two records with equal fields are both kept.
	Record struct {
		Date        Date
		Category    Category
		Amount      decimal.Decimal
		Currency    Currency
		Description string
	}
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidCurrency = errors.New("invalid currency")
)

var categories = []Category{Food, Transport, Entertainment, Utilities, Investments, Other}

var currencies = []Currency{USD, EUR, INR, GBP, JPY}

var symbols = map[Currency]string{
	USD: "$",
	EUR: "€",
	INR: "₹",
	GBP: "£",
	JPY: "¥",
}

// Categories returns the closed set of expense categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Currencies returns the closed set of supported currencies.
func Currencies() []Currency {
	return append([]Currency(nil), currencies...)
}

// ParseCategory matches s against the category set ignoring case.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

func (c Category) Valid() bool {
	for _, v := range categories {
		if v == c {
			return true
		}
	}
	return false
}

func (c Category) String() string {
	return string(c)
}

// ParseCurrency matches s against the currency set ignoring case.
func ParseCurrency(s string) (Currency, error) {
	s = strings.TrimSpace(s)
	for _, c := range currencies {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", ErrInvalidCurrency
}

func (c Currency) Valid() bool {
	_, ok := symbols[c]
	return ok
}

// Symbol returns the display symbol, or the code itself for unknown currencies.
func (c Currency) Symbol() string {
	if s, ok := symbols[c]; ok {
		return s
	}
	return string(c)
}

func (c Currency) String() string {
	return string(c)
}

func (i Identity) String() string {
	return string(i)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time-of-day of t, keeping its calendar day.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate accepts ISO dates and the "2006-01-02 15:04:05" timestamps
// written by spreadsheet tools; any time-of-day is discarded.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateOnly, time.DateTime, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, ErrInvalidDate
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String returns the ISO-8601 calendar date.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// Before reports whether d is an earlier day than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// After reports whether d is a later day than o.
func (d Date) After(o Date) bool {
	return d.Time.After(o.Time)
}

// YearMonth returns the year-month bucket of the date.
func (d Date) YearMonth() YearMonth {
	return YearMonth{Year: d.Year(), Month: d.Month()}
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ValidateAmount enforces amount >= 0. Zero is accepted.
func ValidateAmount(a decimal.Decimal) error {
	if a.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

func (r Record) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return err
	}
	if !r.Category.Valid() {
		return ErrInvalidCategory
	}
	if err := ValidateAmount(r.Amount); err != nil {
		return err
	}
	if !r.Currency.Valid() {
		return ErrInvalidCurrency
	}
	return nil
}
