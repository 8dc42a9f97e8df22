package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrInvalid
	ErrTooMany
	ErrInternal
	ErrQueryTooShort
	ErrQueryBanned
	ErrIndexUnavailable
	ErrAIUnavailable
)
