package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Webhook signature failures, ordered from malformed input to outright
// rejection. Handlers map malformed to 400 and the rest to 401.
var (
	ErrMissingSecret      = errors.New("webhook secret is not configured")
	ErrMalformedSignature = errors.New("malformed signature header")
	ErrStaleTimestamp     = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("signature mismatch")
)

type signatureHeader struct {
	timestamp int64
	signature string
}

// parseSignatureHeader reads a "t=<unix>,v1=<hex>" header.
func parseSignatureHeader(header string) (signatureHeader, error) {
	var parsed signatureHeader
	if strings.TrimSpace(header) == "" {
		return parsed, ErrMalformedSignature
	}
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return signatureHeader{}, ErrMalformedSignature
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return signatureHeader{}, ErrMalformedSignature
			}
			parsed.timestamp = ts
		case "v1":
			parsed.signature = value
		}
	}
	if parsed.timestamp == 0 || parsed.signature == "" {
		return signatureHeader{}, ErrMalformedSignature
	}
	return parsed, nil
}

// verifySignature checks an HMAC-SHA256 signature computed over
// "{timestamp}.{rawBody}". A missing secret is a hard failure, never a
// bypass.
func verifySignature(secret, header string, body []byte, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}

	parsed, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	drift := now.Sub(time.Unix(parsed.timestamp, 0))
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		return ErrStaleTimestamp
	}

	expected := computeSignature(secret, parsed.timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(parsed.signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
