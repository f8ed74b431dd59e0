package provider

import (
	"fmt"
	"net/http"

	"github.com/SNU-SE/analysisq/internal/backoff"
)

// Error is a failure from a provider call carrying enough structure to be
// classified without message sniffing. Status is the upstream HTTP status
// when one exists, Code a provider-specific error code.
type Error struct {
	Provider string
	Status   int
	Code     string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Classification() backoff.Kind {
	if e.Status != 0 {
		switch {
		case e.Status == http.StatusTooManyRequests || e.Status >= 500:
			return backoff.KindRetryable
		case e.Status >= 400:
			return backoff.KindPermanent
		}
	}
	if e.Err != nil {
		return backoff.ClassifyMessage(e.Err.Error())
	}
	return backoff.KindPermanent
}
