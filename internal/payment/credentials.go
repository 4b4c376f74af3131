package payment

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

const (
	accessTokenBytes = 12
	passwordBytes    = 6
	passwordMaxLen   = 10
	passwordMinLen   = 6
)

// NewAccessToken generates the opaque token used to redeem access
// without exposing the payment id: 12 random bytes, hex encoded.
func NewAccessToken() string {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("payment: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// NewPassword generates a short alphanumeric access password:
// 6 random bytes, base64, non-alphanumerics stripped, capped at 10
// characters. Regenerates until the result has a usable length.
func NewPassword() string {
	buf := make([]byte, passwordBytes)
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("payment: crypto/rand unavailable: " + err.Error())
		}
		pass := stripNonAlnum(base64.StdEncoding.EncodeToString(buf))
		if len(pass) > passwordMaxLen {
			pass = pass[:passwordMaxLen]
		}
		if len(pass) >= passwordMinLen {
			return pass
		}
	}
}

func stripNonAlnum(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}
