package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// TokenSigner mints and checks the HMAC tokens handed out alongside an
// export, so the stored file can be downloaded again without any
// server-side session state.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner constructs a signer with the given secret and token TTL.
func NewTokenSigner(secret string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl}
}

// Sign binds an export ID to its stored name until the TTL runs out.
// The token is four dot-joined segments: id, unix expiry, base64 name,
// hex HMAC signature.
func (s *TokenSigner) Sign(exportID, name string) (string, time.Time, error) {
	if exportID == "" || name == "" {
		return "", time.Time{}, errors.New("export id and name required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiry := time.Now().Add(s.ttl)
	ts := strconv.FormatInt(expiry.Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(name))
	token := strings.Join([]string{exportID, ts, encoded, s.mac(exportID, ts, encoded)}, ".")
	return token, expiry, nil
}

// Verify checks a token's signature and expiry and returns the export
// ID and stored name it refers to.
func (s *TokenSigner) Verify(token string) (exportID, name string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", errors.New("malformed token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", "", errors.New("malformed token")
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", "", errors.New("malformed token")
	}
	if !hmac.Equal([]byte(s.mac(parts[0], parts[1], parts[2])), []byte(parts[3])) {
		return "", "", errors.New("token signature mismatch")
	}
	if time.Now().After(time.Unix(expiry, 0)) {
		return "", "", errors.New("token expired")
	}
	return parts[0], string(raw), nil
}

func (s *TokenSigner) mac(exportID, ts, encodedName string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(exportID + "|" + ts + "|" + encodedName))
	return hex.EncodeToString(h.Sum(nil))
}
