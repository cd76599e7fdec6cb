package apiclient

import (
	"fmt"
	"net/http"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/climagrid/internal/errors"
)

// StatusError is returned for any non-2xx API response.
type StatusError struct {
	Endpoint string
	Status   int
	Detail   string // server supplied detail, empty when the body carried none
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: request failed (%d): %s", e.Endpoint, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: request failed (%d %s)", e.Endpoint, e.Status, http.StatusText(e.Status))
}

// ErrorCategory implements errors.CategorizedError.
func (e *StatusError) ErrorCategory() errors.ErrorCategory {
	if e.Status == http.StatusNotFound {
		return errors.CategoryNotFound
	}
	if e.Status == http.StatusUnprocessableEntity || e.Status == http.StatusBadRequest {
		return errors.CategoryValidation
	}
	if e.Status == http.StatusTooManyRequests {
		return errors.CategoryLimit
	}
	return errors.CategoryHTTP
}

// AsStatusError returns the StatusError in err's chain, if any.
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// extractDetail pulls a human readable detail out of an error body.
// Both {"detail": "..."} and validation arrays {"detail": [{"msg": "..."}]}
// are understood; anything else yields "".
func extractDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	obj, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return ""
	}
	if detail, err := obj.GetString("detail"); err == nil {
		return detail
	}
	items, err := obj.GetObjectArray("detail")
	if err != nil || len(items) == 0 {
		return ""
	}
	msg, err := items[0].GetString("msg")
	if err != nil {
		return ""
	}
	return msg
}
