// Package source runs the tiered fallback chain that enriches a single
// opportunity: each tier is tried with bounded retries, transient failures
// back off and retry, permanent failures fall through to the next tier.
package source

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grantsgov"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/scrape"
)

// ErrNoData signals a source answered cleanly but had nothing for the
// record. The chain moves on without retrying.
var ErrNoData = errors.New("source returned no data")

// ErrExhausted signals every tier in the chain came up empty or failed.
// Callers treat it as "no data", not as a pipeline fault.
var ErrExhausted = errors.New("all sources exhausted")

// Outcome is the terminal state of one attempt against one source.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeEmpty     Outcome = "empty"
	OutcomeTransient Outcome = "transient_failure"
	OutcomePermanent Outcome = "permanent_failure"
)

// IsPermanent reports whether the error can never succeed on retry:
// client-side HTTP errors other than throttling, and malformed payloads.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var apiStatus *grantsgov.StatusError
	if errors.As(err, &apiStatus) {
		return permanentStatus(apiStatus.StatusCode)
	}
	var pageStatus *scrape.PageStatusError
	if errors.As(err, &pageStatus) {
		return permanentStatus(pageStatus.StatusCode)
	}
	var apiErr *grantsgov.APIError
	if errors.As(err, &apiErr) {
		return true
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return true
	}
	return false
}

func permanentStatus(code int) bool {
	if code >= http.StatusInternalServerError {
		return false
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= http.StatusBadRequest
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrNoData):
		return OutcomeEmpty
	case IsPermanent(err):
		return OutcomePermanent
	default:
		return OutcomeTransient
	}
}
