package tracker

import "fmt"

// ValidationError reports a setter argument that violates the collector's
// parameter contract. It is returned synchronously from the setter call,
// never deferred to serialization time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) ValidationError {
	return ValidationError{Field: field, Reason: reason}
}

// ConfigError reports an invalid Client configuration. It is returned
// from NewClient, never from a send.
type ConfigError struct {
	Option string
	Reason string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Option, e.Reason)
}

// DeliveryError wraps a transport-level send failure. A non-2xx collector
// response is not a delivery error; callers inspect Response for that.
type DeliveryError struct {
	Endpoint string
	Err      error
}

func (e DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Endpoint, e.Err)
}

func (e DeliveryError) Unwrap() error {
	return e.Err
}
