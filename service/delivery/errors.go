package delivery

import "errors"

// PermanentError marks a send failure that retrying cannot fix (bad target
// configuration, gone subscriptions). The publisher gives up on it
// immediately instead of burning retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}
