package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Signature-Timestamp"
)

// MaxClockSkew is how far in the future a signature timestamp may be.
const MaxClockSkew = time.Minute

// Signature is the pair of headers authenticating a billing callback.
type Signature struct {
	Value     string
	Timestamp int64
}

// Apply sets the signature headers on h.
func (s Signature) Apply(h http.Header) {
	h.Set(HeaderSignature, s.Value)
	h.Set(HeaderTimestamp, strconv.FormatInt(s.Timestamp, 10))
}

// Sign computes hex(HMAC-SHA256(secret, "<unix ts>.<payload>")).
func Sign(secret string, payload []byte, at time.Time) (Signature, error) {
	if secret == "" {
		return Signature{}, ErrMissingSecret
	}
	if len(payload) == 0 {
		return Signature{}, ErrEmptyPayload
	}
	ts := at.Unix()
	return Signature{Value: compute(secret, ts, payload), Timestamp: ts}, nil
}

// Verify checks sig against payload. Timestamps older than maxAge or more than
// MaxClockSkew ahead of now are rejected; a zero maxAge disables the age check.
func Verify(secret string, payload []byte, sig Signature, maxAge time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if sig.Value == "" || sig.Timestamp == 0 {
		return ErrMissingSignature
	}

	if maxAge > 0 {
		age := now.Sub(time.Unix(sig.Timestamp, 0))
		if age > maxAge || age < -MaxClockSkew {
			return fmt.Errorf("%w: age %s", ErrSignatureExpired, age.Round(time.Second))
		}
	}

	expected := compute(secret, sig.Timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(sig.Value)) {
		return ErrSignatureMismatch
	}
	return nil
}

// FromRequest reads the signature headers of r.
func FromRequest(r *http.Request) (Signature, error) {
	value := r.Header.Get(HeaderSignature)
	raw := r.Header.Get(HeaderTimestamp)
	if value == "" || raw == "" {
		return Signature{}, ErrMissingSignature
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ts <= 0 {
		return Signature{}, ErrInvalidTimestamp
	}
	return Signature{Value: value, Timestamp: ts}, nil
}

func compute(secret string, ts int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ts, 10)))
	h.Write([]byte("."))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
