package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Issuer     string
	Audience   string
	JWKSURI    string
	Algorithms []string
	Leeway     time.Duration

	// AllowInsecureDevTokens skips signature, issuer and audience checks.
	// Local development only.
	AllowInsecureDevTokens bool
}

// Verifier validates RS-signed bearer tokens against a JWKS endpoint.
type Verifier struct {
	cfg  VerifierConfig
	jwks *JWKSCache
}

// NewVerifier creates a verifier. Algorithms default to RS256.
func NewVerifier(cfg VerifierConfig, jwks *JWKSCache) (*Verifier, error) {
	if jwks == nil {
		return nil, fmt.Errorf("jwks cache cannot be nil")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.JWKSURI = strings.TrimSpace(cfg.JWKSURI)
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{"RS256"}
	}
	if cfg.Leeway < 0 {
		cfg.Leeway = 0
	}
	return &Verifier{cfg: cfg, jwks: jwks}, nil
}

// Verify checks token and returns its claims.
func (v *Verifier) Verify(ctx context.Context, token string) (jwt.MapClaims, error) {
	raw := strings.TrimSpace(token)
	if raw == "" {
		return nil, ErrEmptyToken
	}

	if v.cfg.AllowInsecureDevTokens {
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, tokenError(err, "Invalid dev token: %v", err)
		}
		return claims, nil
	}

	switch {
	case v.cfg.Issuer == "":
		return nil, ErrIssuerUnset
	case v.cfg.Audience == "":
		return nil, ErrAudienceUnset
	case v.cfg.JWKSURI == "":
		return nil, ErrJWKSURIUnset
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, tokenError(err, "Invalid token header: %v", err)
	}
	kid, _ := unverified.Header["kid"].(string)
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrMissingKeyID
	}

	jwk, err := v.jwks.Key(ctx, v.cfg.JWKSURI, kid)
	if err != nil {
		return nil, tokenError(err, "Failed to load JWKS: %v", err)
	}
	if jwk == nil {
		return nil, ErrSigningKeyNotFound
	}
	publicKey, err := rsaPublicKey(*jwk)
	if err != nil {
		return nil, tokenError(err, "Invalid access token: %v", err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.cfg.Algorithms),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithLeeway(v.cfg.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return publicKey, nil
	}); err != nil {
		return nil, tokenError(err, "Invalid access token: %v", err)
	}
	if iat, err := claims.GetIssuedAt(); err != nil || iat == nil {
		return nil, tokenError(jwt.ErrTokenRequiredClaimMissing, "Invalid access token: token is missing required claim: iat claim is required")
	}
	return claims, nil
}

// rsaPublicKey builds an RSA key from base64url modulus and exponent.
func rsaPublicKey(key JWK) (*rsa.PublicKey, error) {
	if key.Kty != "" && key.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", key.Kty)
	}
	n, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key.N, "="))
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(key.E, "="))
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 {
		return nil, fmt.Errorf("empty modulus or exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
