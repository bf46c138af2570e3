package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
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

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := IdentityClaims{Email: "a@b.com", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseAccessIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "gogrant",
		Audience:      "c1",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, _, err := m.CreateAccess(Identity{UserID: "u"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	wrongIssuer := IdentityClaims{Email: "a@b.com", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"c1"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badIssuerTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongIssuer)
	badIssuer, _ := badIssuerTok.SignedString(priv)
	if _, err := m.ParseAccess(badIssuer); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := IdentityClaims{Email: "a@b.com", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "gogrant",
		Audience:  gjwt.ClaimStrings{"c2"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
	}}
	badAudienceTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, wrongAudience)
	badAudience, _ := badAudienceTok.SignedString(priv)
	if _, err := m.ParseAccess(badAudience); err == nil {
		t.Fatal("expected wrong audience to fail")
	}

	expWithinLeeway := IdentityClaims{Email: "a@b.com", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "gogrant",
		Audience:  gjwt.ClaimStrings{"c1"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-15 * time.Second)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	withinTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expWithinLeeway)
	within, _ := withinTok.SignedString(priv)
	if _, err := m.ParseAccess(within); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}

	expired := IdentityClaims{Email: "a@b.com", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "gogrant",
		Audience:  gjwt.ClaimStrings{"c1"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-2 * time.Minute)),
		IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-3 * time.Minute)),
	}}
	expiredTok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, expired)
	expiredSigned, _ := expiredTok.SignedString(priv)
	if _, err := m.ParseAccess(expiredSigned); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys: map[string][]byte{
			"k1": pub1,
		},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := IdentityClaims{Email: "a@b.com", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.ParseAccess(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.ParseAccess(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestCreateAccessIdentityClaims(t *testing.T) {
	m, err := NewManager(Config{
		AccessTTL:     15 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "https://auth.example.com",
		Audience:      "c1",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	fixed := time.Unix(1700000000, 0)
	m.now = func() time.Time { return fixed }

	token, expiresAt, err := m.CreateAccess(Identity{
		UserID:     "6553f1000000000000000001",
		GivenName:  "Ada",
		FamilyName: "Lovelace",
		Email:      "ada@example.com",
		Nonce:      "n1",
	})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if !expiresAt.Equal(fixed.Add(15 * time.Minute)) {
		t.Fatalf("expiresAt = %v", expiresAt)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "6553f1000000000000000001" || claims.Name != "Ada Lovelace" {
		t.Fatalf("unexpected identity: sub=%q name=%q", claims.Subject, claims.Name)
	}
	if claims.GivenName != "Ada" || claims.FamilyName != "Lovelace" || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected names: %+v", claims)
	}
	if claims.Nonce != "n1" || claims.Picture != "" {
		t.Fatalf("nonce=%q picture=%q", claims.Nonce, claims.Picture)
	}
	if claims.ExpiresAt.Unix() != fixed.Add(15*time.Minute).Unix() || claims.IssuedAt.Unix() != fixed.Unix() {
		t.Fatalf("exp=%v iat=%v", claims.ExpiresAt, claims.IssuedAt)
	}
	if len(claims.Audience) != 1 || claims.Audience[0] != "c1" {
		t.Fatalf("aud = %v", claims.Audience)
	}
	if claims.ID == "" {
		t.Fatal("missing jti")
	}
}

func TestCreateAccessTokensAreUnique(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("secret-secret-secret-secret")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	fixed := time.Unix(1700000000, 0)
	m.now = func() time.Time { return fixed }

	a, _, err := m.CreateAccess(Identity{UserID: "u"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	b, _, err := m.CreateAccess(Identity{UserID: "u"})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if a == b {
		t.Fatal("identical claims must still produce distinct tokens")
	}
}

func TestParseAccessRequiresExpiry(t *testing.T) {
	secret := []byte("secret-secret-secret-secret")
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: secret})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, IdentityClaims{Email: "a@b.com"})
	token, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("expected token without exp to be rejected")
	}
}
