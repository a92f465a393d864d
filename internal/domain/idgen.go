package domain

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Base36Timestamp renders t's Unix-millisecond value in base36, the
// timestamp component of a session id and of the default audit export
// filename.
func Base36Timestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 36)
}

// RandomHex returns n random bytes hex-encoded, used for session id
// suffixes and access tokens.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewSessionID builds a session id of the shape
// "<prefix>_<base36-ms>_<6 hex>".
func NewSessionID(prefix string, now time.Time) (string, error) {
	suffix, err := RandomHex(3)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%s", prefix, Base36Timestamp(now), suffix), nil
}

// NewToken returns a fresh 128-bit hex token for AccessToken sessions.
func NewToken() (string, error) {
	return RandomHex(16)
}

// NewBasicPassword returns a fresh 96-bit base64url password for
// AccessBasic sessions.
func NewBasicPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
