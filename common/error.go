package common

import "fmt"

// APIError is the JSON error shape every handler returns.
type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// WithFields attaches structured detail for the response body.
func (e APIError) WithFields(fields map[string]any) APIError {
	e.Fields = fields
	return e
}
