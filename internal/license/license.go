// Package license verifies Pro purchase tokens and gates the free tier.
package license

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akyairhashvil/tally/internal/config"
)

// Claims is the payload of a license token: the store receipt reduced to
// the product it unlocks.
type Claims struct {
	Product string `json:"product"`
	jwt.RegisteredClaims
}

// ErrNoLicense means no token is stored; the app runs on the free tier.
var ErrNoLicense = errors.New("license: not activated")

// ErrInvalidLicense wraps signature, issuer, and product failures.
var ErrInvalidLicense = errors.New("license: token invalid")

// ErrLicenseExpired reports a token past its expiry claim.
var ErrLicenseExpired = errors.New("license: token expired")

// ErrLimitReached reports the free-tier activity cap.
var ErrLimitReached = errors.New("license: free activity limit reached")

// DefaultPublicKey returns the bundled verification key.
func DefaultPublicKey() ed25519.PublicKey {
	key, err := hex.DecodeString(config.ProLicensePublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		panic("license: bundled public key is malformed")
	}
	return ed25519.PublicKey(key)
}

// Verify checks the signature, expiry, issuer, and product of a token.
func Verify(token string, pub ed25519.PublicKey) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoLicense
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithIssuer(config.LicenseIssuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrLicenseExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidLicense, err)
	}
	if claims.Product != config.ProProductID {
		return nil, fmt.Errorf("%w: product %q does not unlock this app", ErrInvalidLicense, claims.Product)
	}
	return claims, nil
}

// Activate verifies a token and stores it at path for later runs.
func Activate(path, token string, pub ed25519.PublicKey) (*Claims, error) {
	claims, err := Verify(token, pub)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("license: %w", err)
	}
	if err := os.WriteFile(path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("license: %w", err)
	}
	return claims, nil
}

// Load reads and verifies the stored token. A missing file is the free
// tier, reported as ErrNoLicense.
func Load(path string, pub ed25519.PublicKey) (*Claims, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoLicense
	}
	if err != nil {
		return nil, fmt.Errorf("license: %w", err)
	}
	return Verify(string(data), pub)
}

// Remove deletes the stored token, dropping back to the free tier.
func Remove(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Gate answers entitlement questions for the rest of the app.
type Gate struct {
	claims *Claims
}

// NewGate builds a gate from already verified claims; nil means free tier.
func NewGate(claims *Claims) *Gate {
	return &Gate{claims: claims}
}

// LoadGate builds a gate from the stored license. A missing or rejected
// token yields the free tier, never an error; rejections are logged so a
// revoked or corrupt license is visible.
func LoadGate(path string, pub ed25519.PublicKey, log *slog.Logger) *Gate {
	claims, err := Load(path, pub)
	if err != nil && !errors.Is(err, ErrNoLicense) {
		log.Warn("stored license rejected", "error", err)
	}
	if err != nil {
		claims = nil
	}
	return NewGate(claims)
}

// Pro reports whether a valid Pro license is loaded.
func (g *Gate) Pro() bool {
	return g != nil && g.claims != nil
}

// Product returns the licensed product id, empty on the free tier.
func (g *Gate) Product() string {
	if !g.Pro() {
		return ""
	}
	return g.claims.Product
}

// CanAddActivity reports whether one more active activity is allowed.
// Archived activities never count against the cap, so the caller passes
// the active count only.
func (g *Gate) CanAddActivity(activeCount int) error {
	if g.Pro() {
		return nil
	}
	if activeCount >= config.FreeActivityLimit {
		return fmt.Errorf("%w (%d of %d active)", ErrLimitReached, activeCount, config.FreeActivityLimit)
	}
	return nil
}
