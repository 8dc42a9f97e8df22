package errors

import "errors"

var (
	ErrInvalid          = errors.New("invalid")
	ErrTooMany          = errors.New("too many requests")
	ErrInternal         = errors.New("internal")
	ErrIndexUnavailable = errors.New("index unavailable")
)

func IsIndexUnavailable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable)
}
