package objectstore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vodingest/internal/services"
)

// UploadGrant is what a signed upload credential authorizes.
type UploadGrant struct {
	Key         string
	ContentType string
	MaxBytes    int64
	ExpiresAt   time.Time
}

// Signer generates and validates signed upload tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner returns a Signer. A nil clock uses time.Now.
func NewSigner(secret string, clock func() time.Time) *Signer {
	if clock == nil {
		clock = time.Now
	}
	return &Signer{secret: []byte(secret), now: clock}
}

// Sign encodes the grant as base64url(payload) "." base64url(hmac).
func (s *Signer) Sign(g UploadGrant) string {
	payload := fmt.Sprintf("%s|%s|%d|%d", g.Key, g.ContentType, g.MaxBytes, g.ExpiresAt.Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + s.mac([]byte(payload))
}

// Verify validates a token and returns the grant it carries.
func (s *Signer) Verify(token string) (UploadGrant, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return UploadGrant{}, forbidden("invalid token format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return UploadGrant{}, forbidden("invalid token encoding")
	}
	if !hmac.Equal([]byte(parts[1]), []byte(s.mac(payload))) {
		return UploadGrant{}, forbidden("invalid signature")
	}

	fields := strings.Split(string(payload), "|")
	if len(fields) != 4 {
		return UploadGrant{}, forbidden("invalid payload")
	}
	maxBytes, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return UploadGrant{}, forbidden("invalid size limit")
	}
	expiryUnix, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return UploadGrant{}, forbidden("invalid expiry")
	}
	if s.now().Unix() > expiryUnix {
		return UploadGrant{}, forbidden("upload credential expired")
	}
	return UploadGrant{
		Key:         fields[0],
		ContentType: fields[1],
		MaxBytes:    maxBytes,
		ExpiresAt:   time.Unix(expiryUnix, 0).UTC(),
	}, nil
}

func (s *Signer) mac(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func forbidden(msg string) error {
	return services.Wrap(services.ErrForbidden, component, "verify upload token", msg, nil)
}
