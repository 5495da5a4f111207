package webhook_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/planguard/pkg/webhook"
)

const secret = "whsec_test"

var signedAt = time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC)

func TestSignAndVerify(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"subject_id":"u1","new_tier":"pro"}`)
	sig, err := webhook.Sign(secret, payload, signedAt)
	require.NoError(t, err)
	assert.Len(t, sig.Value, 64)
	assert.Equal(t, signedAt.Unix(), sig.Timestamp)

	tests := []struct {
		name    string
		secret  string
		payload []byte
		sig     webhook.Signature
		now     time.Time
		want    error
	}{
		{"valid", secret, payload, sig, signedAt.Add(time.Minute), nil},
		{"wrong secret", "other", payload, sig, signedAt, webhook.ErrSignatureMismatch},
		{"tampered payload", secret, []byte(`{"subject_id":"u1","new_tier":"team"}`), sig, signedAt, webhook.ErrSignatureMismatch},
		{"too old", secret, payload, sig, signedAt.Add(6 * time.Minute), webhook.ErrSignatureExpired},
		{"from the future", secret, payload, sig, signedAt.Add(-2 * time.Minute), webhook.ErrSignatureExpired},
		{"missing signature", secret, payload, webhook.Signature{}, signedAt, webhook.ErrMissingSignature},
		{"no secret", "", payload, sig, signedAt, webhook.ErrMissingSecret},
		{"empty payload", secret, nil, sig, signedAt, webhook.ErrEmptyPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := webhook.Verify(tt.secret, tt.payload, tt.sig, 5*time.Minute, tt.now)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("age check disabled", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, webhook.Verify(secret, payload, sig, 0, signedAt.Add(24*time.Hour)))
	})
}

func TestFromRequest(t *testing.T) {
	t.Parallel()

	payload := []byte(`{}`)
	sig, err := webhook.Sign(secret, payload, signedAt)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
		sig.Apply(r.Header)
		got, err := webhook.FromRequest(r)
		require.NoError(t, err)
		assert.Equal(t, sig, got)
	})

	t.Run("missing headers", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		_, err := webhook.FromRequest(r)
		assert.ErrorIs(t, err, webhook.ErrMissingSignature)
	})

	t.Run("bad timestamp", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r.Header.Set(webhook.HeaderSignature, sig.Value)
		r.Header.Set(webhook.HeaderTimestamp, "yesterday")
		_, err := webhook.FromRequest(r)
		assert.ErrorIs(t, err, webhook.ErrInvalidTimestamp)
	})
}
