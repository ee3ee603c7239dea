package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"expenses/internal/core"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type loginRequest struct {
	Mode string `json:"mode" validate:"required"`
	Name string `json:"name" validate:"required,max=100"`
}

type loginResponse struct {
	Token          string `json:"token"`
	Identity       string `json:"identity"`
	Status         string `json:"status"`
	RecoveryReason string `json:"recovery_reason,omitempty"`
}

// amountField accepts a JSON string or number.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = amountField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a string or number")
	}
	*a = amountField(n.String())
	return nil
}

type expenseRequest struct {
	Date        string      `json:"date" validate:"required"`
	Category    string      `json:"category" validate:"required"`
	Amount      amountField `json:"amount" validate:"required"`
	Currency    string      `json:"currency" validate:"omitempty,len=3"`
	Description string      `json:"description"`
}

type expenseResponse struct {
	Date        core.Date       `json:"date"`
	Category    core.Category   `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    core.Currency   `json:"currency"`
	Description string          `json:"description,omitempty"`
	Display     string          `json:"display"`
}

func newExpenseResponse(r core.Record) expenseResponse {
	return expenseResponse{
		Date:        r.Date,
		Category:    r.Category,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Description: r.Description,
		Display:     core.FormatAmount(r.Amount, r.Currency),
	}
}

type listResponse struct {
	Identity string            `json:"identity"`
	Count    int               `json:"count"`
	Expenses []expenseResponse `json:"expenses"`
}

type summaryResponse struct {
	Identity string               `json:"identity"`
	Summary  core.Summary         `json:"summary"`
	Shares   []core.CategoryTotal `json:"shares"`
}

type convertQuery struct {
	Amount string `json:"amount" validate:"required"`
	From   string `json:"from" validate:"required,len=3"`
	To     string `json:"to" validate:"required,len=3"`
}

type convertResponse struct {
	Amount  decimal.Decimal `json:"amount"`
	From    core.Currency   `json:"from"`
	To      core.Currency   `json:"to"`
	Result  decimal.Decimal `json:"result"`
	Display string          `json:"display"`
}

// decodeJSON reads a size-limited JSON body into dst and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return validate.Struct(dst)
}
