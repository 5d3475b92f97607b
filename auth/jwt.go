package auth

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hupe1980/brandmesh/core"
	"github.com/hupe1980/brandmesh/logging"
)

const issuer = "brandmesh"

// Claims extends jwt.RegisteredClaims with the principal fields.
type Claims struct {
	jwt.RegisteredClaims
	BrandID string `json:"brand_id,omitempty"`
	Role    string `json:"role"`
}

// Principal converts validated claims.
func (c *Claims) Principal() Principal {
	return Principal{Subject: c.Subject, BrandID: c.BrandID, Role: c.Role}
}

// JWTOptions configure a JWTManager.
type JWTOptions struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Expiration     time.Duration
	Clock          core.Clock
	Logger         logging.Logger
}

// JWTManager issues and validates tokens using Ed25519.
type JWTManager struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	expiration time.Duration
	clock      core.Clock
}

// NewJWTManager creates a JWTManager. Without key paths it generates an
// ephemeral key pair.
func NewJWTManager(optFns ...func(o *JWTOptions)) (*JWTManager, error) {
	opts := JWTOptions{
		Expiration: 24 * time.Hour,
		Clock:      core.SystemClock{},
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	m := &JWTManager{expiration: opts.Expiration, clock: opts.Clock}

	if opts.PrivateKeyPath == "" || opts.PublicKeyPath == "" {
		opts.Logger.Warn("auth.keys.ephemeral", "reason", "no key files configured")

		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}

		m.privateKey, m.publicKey = priv, pub

		return m, nil
	}

	priv, err := readPrivateKey(opts.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	pub, err := readPublicKey(opts.PublicKeyPath)
	if err != nil {
		return nil, err
	}

	if !bytes.Equal(priv.Public().(ed25519.PublicKey), pub) {
		return nil, fmt.Errorf("auth: public key does not match private key")
	}

	m.privateKey, m.publicKey = priv, pub

	return m, nil
}

func readPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("auth: read private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("auth: decode private key PEM")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}

	ed, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("auth: private key is not Ed25519")
	}

	return ed, nil
}

func readPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}

	ed, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}

	return ed, nil
}

// IssueToken signs a token for p and returns it with its expiry.
func (m *JWTManager) IssueToken(p Principal) (string, time.Time, error) {
	if p.Subject == "" {
		return "", time.Time{}, fmt.Errorf("auth: principal has no subject")
	}

	now := m.clock.Now().UTC()
	exp := now.Add(m.expiration)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		BrandID: p.BrandID,
		Role:    p.Role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}

	return signed, exp, nil
}

// ValidateToken parses and validates a token.
func (m *JWTManager) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return m.publicKey, nil
		},
		jwt.WithAudience(issuer),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	return claims, nil
}

// Authenticate validates tokenStr and returns ctx carrying its principal.
func (m *JWTManager) Authenticate(ctx context.Context, tokenStr string) (context.Context, error) {
	claims, err := m.ValidateToken(tokenStr)
	if err != nil {
		return ctx, err
	}

	return WithPrincipal(ctx, claims.Principal()), nil
}
