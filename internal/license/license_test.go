package license

import (
	"crypto/ed25519"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akyairhashvil/tally/internal/config"
)

func testKeypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return pub, priv
}

func mintToken(t *testing.T, priv ed25519.PrivateKey, mutate func(*Claims)) string {
	t.Helper()
	claims := &Claims{
		Product: config.ProProductID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    config.LicenseIssuer,
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	if mutate != nil {
		mutate(claims)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return token
}

func TestVerifyValidToken(t *testing.T) {
	pub, priv := testKeypair(t)
	token := mintToken(t, priv, nil)

	claims, err := Verify(token, pub)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Product != config.ProProductID {
		t.Fatalf("unexpected product %q", claims.Product)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	pub, _ := testKeypair(t)
	_, otherPriv := testKeypair(t)
	token := mintToken(t, otherPriv, nil)

	if _, err := Verify(token, pub); !errors.Is(err, ErrInvalidLicense) {
		t.Fatalf("expected ErrInvalidLicense, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	pub, priv := testKeypair(t)
	token := mintToken(t, priv, func(c *Claims) { c.Issuer = "somebody-else" })

	if _, err := Verify(token, pub); !errors.Is(err, ErrInvalidLicense) {
		t.Fatalf("expected ErrInvalidLicense, got %v", err)
	}
}

func TestVerifyRejectsWrongProduct(t *testing.T) {
	pub, priv := testKeypair(t)
	token := mintToken(t, priv, func(c *Claims) { c.Product = "tally.other" })

	if _, err := Verify(token, pub); !errors.Is(err, ErrInvalidLicense) {
		t.Fatalf("expected ErrInvalidLicense, got %v", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	pub, priv := testKeypair(t)
	token := mintToken(t, priv, func(c *Claims) {
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	})

	if _, err := Verify(token, pub); !errors.Is(err, ErrLicenseExpired) {
		t.Fatalf("expected ErrLicenseExpired, got %v", err)
	}
}

func TestVerifyRejectsForeignAlgorithm(t *testing.T) {
	pub, _ := testKeypair(t)

	// A token signed with HMAC using the public key as secret must not
	// slip past the EdDSA requirement.
	claims := &Claims{
		Product:          config.ProProductID,
		RegisteredClaims: jwt.RegisteredClaims{Issuer: config.LicenseIssuer},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(pub))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}

	if _, err := Verify(token, pub); !errors.Is(err, ErrInvalidLicense) {
		t.Fatalf("expected ErrInvalidLicense, got %v", err)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	pub, _ := testKeypair(t)
	if _, err := Verify("  \n", pub); !errors.Is(err, ErrNoLicense) {
		t.Fatalf("expected ErrNoLicense, got %v", err)
	}
}

func TestActivateAndLoad(t *testing.T) {
	pub, priv := testKeypair(t)
	token := mintToken(t, priv, nil)
	path := filepath.Join(t.TempDir(), "keys", "license.jwt")

	if _, err := Activate(path, token, pub); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("license file mode = %v, want 0600", info.Mode().Perm())
	}

	claims, err := Load(path, pub)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if claims.Product != config.ProProductID {
		t.Fatalf("unexpected product %q", claims.Product)
	}
}

func TestActivateRejectsBadToken(t *testing.T) {
	pub, _ := testKeypair(t)
	path := filepath.Join(t.TempDir(), "license.jwt")

	if _, err := Activate(path, "garbage", pub); !errors.Is(err, ErrInvalidLicense) {
		t.Fatalf("expected ErrInvalidLicense, got %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("rejected token must not be stored")
	}
}

func TestLoadMissingFile(t *testing.T) {
	pub, _ := testKeypair(t)
	path := filepath.Join(t.TempDir(), "license.jwt")

	if _, err := Load(path, pub); !errors.Is(err, ErrNoLicense) {
		t.Fatalf("expected ErrNoLicense, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	pub, priv := testKeypair(t)
	path := filepath.Join(t.TempDir(), "license.jwt")
	if _, err := Activate(path, mintToken(t, priv, nil), pub); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	if err := Remove(path); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := Remove(path); err != nil {
		t.Fatalf("second Remove must be a no-op, got %v", err)
	}
	if _, err := Load(path, pub); !errors.Is(err, ErrNoLicense) {
		t.Fatalf("expected free tier after Remove")
	}
}

func TestGateLimits(t *testing.T) {
	free := NewGate(nil)
	if free.Pro() {
		t.Fatalf("gate without claims must be free tier")
	}
	if err := free.CanAddActivity(config.FreeActivityLimit - 1); err != nil {
		t.Fatalf("below the cap must pass: %v", err)
	}
	if err := free.CanAddActivity(config.FreeActivityLimit); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached at the cap, got %v", err)
	}

	pro := NewGate(&Claims{Product: config.ProProductID})
	if !pro.Pro() {
		t.Fatalf("gate with claims must be pro")
	}
	if err := pro.CanAddActivity(1000); err != nil {
		t.Fatalf("pro tier must be uncapped: %v", err)
	}
	if pro.Product() != config.ProProductID {
		t.Fatalf("unexpected product %q", pro.Product())
	}
}

func TestLoadGateFallsBackToFree(t *testing.T) {
	pub, _ := testKeypair(t)
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	// No file at all.
	g := LoadGate(filepath.Join(dir, "none.jwt"), pub, log)
	if g.Pro() {
		t.Fatalf("missing license must be free tier")
	}

	// A corrupt file degrades to free instead of failing startup.
	bad := filepath.Join(dir, "bad.jwt")
	if err := os.WriteFile(bad, []byte("not a token"), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	g = LoadGate(bad, pub, log)
	if g.Pro() {
		t.Fatalf("corrupt license must be free tier")
	}
}

func TestDefaultPublicKey(t *testing.T) {
	key := DefaultPublicKey()
	if len(key) != ed25519.PublicKeySize {
		t.Fatalf("bundled key length = %d", len(key))
	}
}
