package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
)

const (
	MinOTPDigits = 4
	MaxOTPDigits = 10
)

var (
	ErrOTPDigits        = errors.New("otp length out of range")
	ErrMalformedRefresh = errors.New("malformed refresh token")
)

// RefreshToken is the opaque refresh credential the development backend hands
// out. It names a session and carries a secret for it.
type RefreshToken struct {
	Session [16]byte
	Secret  [32]byte
}

const refreshTokenLen = len(RefreshToken{}.Session) + len(RefreshToken{}.Secret)

// String encodes t as unpadded base64url.
func (t RefreshToken) String() string {
	buf := make([]byte, 0, refreshTokenLen)
	buf = append(buf, t.Session[:]...)
	buf = append(buf, t.Secret[:]...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// SecretHash is the value a server stores instead of the secret itself.
func (t RefreshToken) SecretHash() [32]byte {
	return sha256.Sum256(t.Secret[:])
}

func ParseRefreshToken(s string) (RefreshToken, error) {
	var t RefreshToken
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != refreshTokenLen {
		return t, ErrMalformedRefresh
	}
	n := copy(t.Session[:], raw)
	copy(t.Secret[:], raw[n:])
	return t, nil
}

// NewRefreshToken returns the encoding of a random RefreshToken.
func NewRefreshToken() (string, error) {
	var t RefreshToken
	if _, err := rand.Read(t.Session[:]); err != nil {
		return "", err
	}
	if _, err := rand.Read(t.Secret[:]); err != nil {
		return "", err
	}
	return t.String(), nil
}

// HashCode returns a hex digest of a verification code so stores never key on the
// plaintext code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// NewOTP returns a uniformly random numeric code of the given length. Leading
// zeros are kept.
func NewOTP(digits int) (string, error) {
	if digits < MinOTPDigits || digits > MaxOTPDigits {
		return "", ErrOTPDigits
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	out := []byte(n.String())
	for len(out) < digits {
		out = append([]byte{'0'}, out...)
	}
	return string(out), nil
}
