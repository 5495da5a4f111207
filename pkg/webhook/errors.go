package webhook

import "errors"

var (
	ErrMissingSecret     = errors.New("webhook: signing secret is not configured")
	ErrEmptyPayload      = errors.New("webhook: payload is empty")
	ErrMissingSignature  = errors.New("webhook: signature headers are missing")
	ErrInvalidTimestamp  = errors.New("webhook: invalid signature timestamp")
	ErrSignatureExpired  = errors.New("webhook: signature timestamp outside the accepted window")
	ErrSignatureMismatch = errors.New("webhook: signature mismatch")
)
