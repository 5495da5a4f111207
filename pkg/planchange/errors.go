package planchange

import "errors"

var (
	ErrInvalidEvent  = errors.New("planchange: invalid plan change event")
	ErrNotifyFailed  = errors.New("planchange: failed to notify peers")
	ErrInvalidNotice = errors.New("planchange: malformed peer notice")
)
