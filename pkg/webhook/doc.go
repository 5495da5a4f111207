// Package webhook authenticates billing callbacks with timestamped
// HMAC-SHA256 signatures carried in the X-Signature and
// X-Signature-Timestamp headers.
package webhook
