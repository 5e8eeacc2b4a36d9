package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stellar/go-stellar-sdk/amount"

	"github.com/card-fund-service/internal/httputil"
	"github.com/card-fund-service/internal/model"
)

const (
	maxRequestBody = 1 << 20
	timeFormat     = time.RFC3339
)

// ErrorResponse is the standard JSON error response body.
type ErrorResponse = httputil.ErrorResponse

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.RespondJSON(w, status, data)
}

// RespondError writes a JSON error response.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	httputil.RespondError(w, status, code, message)
}

// DecodeJSON decodes the request body into v, writing a 400 and returning false on failure.
// Unknown fields are rejected. An empty body leaves v untouched.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		RespondError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	return true
}

// ParseAmount parses a decimal amount such as "12.5" into stroops.
func ParseAmount(field, s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%s is required", field)
	}
	v, err := amount.ParseInt64(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be a decimal amount with at most 7 fractional digits", field)
	}
	return v, nil
}

// FormatAmount renders stroops as a decimal amount.
func FormatAmount(v int64) string {
	return amount.StringFromInt64(v)
}

// PathParam returns the unescaped chi URL parameter name.
func PathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// FundingProof converts an optional reference into a proof.
func FundingProof(reference string) *model.FundingProof {
	if reference == "" {
		return nil
	}
	return &model.FundingProof{Reference: reference}
}

// QuoteResponse renders a funding quote in decimal amounts.
type QuoteResponse struct {
	Provision string `json:"provision"`
	OptIn     string `json:"opt_in"`
	Fees      string `json:"fees"`
	Total     string `json:"total"`
	Payee     string `json:"payee"`
}

func NewQuoteResponse(q model.Quote, payee string) QuoteResponse {
	return QuoteResponse{
		Provision: FormatAmount(q.Provision),
		OptIn:     FormatAmount(q.OptIn),
		Fees:      FormatAmount(q.Fees),
		Total:     FormatAmount(q.Total),
		Payee:     payee,
	}
}
