package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

// forge signs arbitrary claims with key, bypassing CreateAccess.
func forge(t *testing.T, method gjwt.SigningMethod, key any, claims AccessClaims) string {
	t.Helper()
	token, err := gjwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	return token
}

func TestParseAccessValidatesClaims(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		Issuer:        "portal",
		Audience:      "api",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	issued, err := m.CreateAccess("u", "patient")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(issued); err != nil {
		t.Fatalf("own token rejected: %v", err)
	}

	now := time.Now()
	claims := func(iss, aud string, exp time.Duration) AccessClaims {
		return AccessClaims{UID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			IssuedAt:  gjwt.NewNumericDate(now.Add(-time.Hour)),
			ExpiresAt: gjwt.NewNumericDate(now.Add(exp)),
		}}
	}
	cases := []struct {
		name   string
		token  string
		accept bool
	}{
		{"wrong issuer", forge(t, gjwt.SigningMethodEdDSA, priv, claims("other", "api", time.Minute)), false},
		{"wrong audience", forge(t, gjwt.SigningMethodEdDSA, priv, claims("portal", "other-api", time.Minute)), false},
		{"expired within leeway", forge(t, gjwt.SigningMethodEdDSA, priv, claims("portal", "api", -15*time.Second)), true},
		{"expired past leeway", forge(t, gjwt.SigningMethodEdDSA, priv, claims("portal", "api", -2*time.Minute)), false},
		{"hs256 downgrade", forge(t, gjwt.SigningMethodHS256, []byte("secret-secret-secret-secret"), claims("portal", "api", time.Minute)), false},
	}
	for _, tc := range cases {
		_, err := m.ParseAccess(tc.token)
		if tc.accept && err != nil {
			t.Fatalf("%s: unexpected rejection: %v", tc.name, err)
		}
		if !tc.accept && err == nil {
			t.Fatalf("%s: token accepted", tc.name)
		}
	}
}

func TestHS256RoundTripAndTamper(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.CreateAccess("u-1", "patient")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(token); err != nil {
		t.Fatalf("parse: %v", err)
	}

	other, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("another-secret-another-secret-00")})
	if _, err := other.ParseAccess(token); err == nil {
		t.Fatal("expected token signed with another secret to fail")
	}

	tampered := token[:len(token)-2] + "xx"
	if _, err := m.ParseAccess(tampered); err == nil {
		t.Fatal("expected tampered signature to fail")
	}
}

func TestVerifyOnlyManager(t *testing.T) {
	pub, priv := newEdKeys(t)
	signer, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	token, err := signer.CreateAccess("u-2", "admin")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := verifier.ParseAccess(token)
	if err != nil || claims.Role != "admin" {
		t.Fatalf("verifier parse: claims=%+v err=%v", claims, err)
	}
	if _, err := verifier.CreateAccess("u-2", "admin"); !errors.Is(err, ErrVerifyOnly) {
		t.Fatalf("expected ErrVerifyOnly, got %v", err)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cases := map[string]Config{
		"zero ttl":       {SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		"huge leeway":    {AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour},
		"hs256 no key":   {AccessTTL: time.Minute, SigningMethod: MethodHS256},
		"ed25519 no key": {AccessTTL: time.Minute, SigningMethod: MethodEd25519},
		"bad ed25519":    {AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: []byte("short")},
		"unknown":        {AccessTTL: time.Minute, SigningMethod: "rs256", PrivateKey: []byte("k")},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestCreateAccessCarriesRoleAndUniqueID(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	first, err := m.CreateAccess("u-7", "doctor")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	second, err := m.CreateAccess("u-7", "doctor")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct tokens for repeated logins")
	}

	claims, err := m.ParseAccess(first)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "u-7" || claims.Role != "doctor" || claims.ID == "" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	if _, err := m.CreateAccess("", "doctor"); !errors.Is(err, ErrEmptySubject) {
		t.Fatalf("expected ErrEmptySubject, got %v", err)
	}
}

func TestParseAccessRejectsMissingUID(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: key})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token := forge(t, gjwt.SigningMethodHS256, key, AccessClaims{
		Role:             "admin",
		RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))},
	})
	if _, err := m.ParseAccess(token); !errors.Is(err, gjwt.ErrTokenInvalidClaims) {
		t.Fatalf("expected ErrTokenInvalidClaims, got %v", err)
	}
}
