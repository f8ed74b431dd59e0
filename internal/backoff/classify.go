package backoff

import (
	"errors"
	"strings"
)

// Kind classifies a job failure. The zero value is KindRetryable so the
// ordering KindRetryable < KindPermanent < KindCritical doubles as a
// severity scale.
type Kind int

const (
	KindRetryable Kind = iota
	KindPermanent
	KindCritical
)

func (k Kind) String() string {
	switch k {
	case KindRetryable:
		return "retryable"
	case KindPermanent:
		return "permanent"
	case KindCritical:
		return "critical"
	}
	return "unknown"
}

// Classifier is implemented by errors that carry their own classification,
// typically structured provider errors. Classify prefers it over message
// matching.
type Classifier interface {
	Classification() Kind
}

var criticalPatterns = []string{
	"out of memory",
	"no space left",
	"disk full",
	"database connection",
	"redis connection",
	"connection pool exhausted",
	"system overload",
	"security",
}

var permanentPatterns = []string{
	"unauthorized",
	"forbidden",
	"not found",
	"invalid api key",
	"invalid credentials",
	"authentication failed",
	"quota exceeded",
	"quota exhausted",
	"malformed",
	"invalid request",
	"bad request",
	"unsupported",
}

var retryablePatterns = []string{
	"timeout",
	"timed out",
	"connection refused",
	"connection reset",
	"service unavailable",
	"temporarily unavailable",
	"rate limit",
	"too many requests",
	"internal server error",
	"bad gateway",
	"gateway timeout",
}

// Classify decides how a failure should be handled. Structured errors are
// asked directly; everything else falls back to message matching, with
// critical patterns checked first so a systemic failure is never retried
// as if it were the job's fault. Unrecognized errors are treated as
// permanent to avoid retry loops on surprises.
func Classify(err error) Kind {
	if err == nil {
		return KindRetryable
	}

	var c Classifier
	if errors.As(err, &c) {
		return c.Classification()
	}

	return ClassifyMessage(err.Error())
}

// ClassifyMessage applies the pattern fallback to a bare error message.
func ClassifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)

	switch {
	case matchesAny(msg, criticalPatterns):
		return KindCritical
	case matchesAny(msg, permanentPatterns):
		return KindPermanent
	case matchesAny(msg, retryablePatterns):
		return KindRetryable
	}

	return KindPermanent
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Severest returns the most severe kind in the slice, KindRetryable when
// it is empty.
func Severest(kinds []Kind) Kind {
	worst := KindRetryable
	for _, k := range kinds {
		if k > worst {
			worst = k
		}
	}
	return worst
}
