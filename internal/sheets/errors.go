package sheets

import (
	"errors"
	"net/http"

	"tank-location-sync/internal/errs"

	"google.golang.org/api/googleapi"
)

// mapError lifts a Google API failure into the shared error taxonomy
func mapError(err error, message string) error {
	if err == nil {
		return nil
	}
	if errs.IsNotFound(err) || errs.IsConflict(err) || errs.IsTransport(err) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return errs.NotFound(message + ": " + apiErr.Message)
		case http.StatusPreconditionFailed, http.StatusConflict:
			return errs.Conflict(err, message)
		}
	}
	return errs.Transport(err, message)
}

// nonCircuitError carries client-side failures through the breaker without tripping it
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (e *nonCircuitError) Unwrap() error {
	return e.err
}

// tripsBreaker reports whether err indicates the remote service is unhealthy
func tripsBreaker(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	return true
}
