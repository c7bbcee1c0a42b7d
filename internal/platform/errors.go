package platform

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotVerified    = errors.New("must verify email before approval")
	ErrAlreadyDecided = errors.New("application already decided")
)
