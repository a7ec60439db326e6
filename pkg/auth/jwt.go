package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// JWTValidator validates tokens presented for servers with auth_type=jwt.
// It fetches and caches the provider's JWKS, auto-refreshing on a timer,
// grounded directly on hector's pkg/auth.JWTValidator.
type JWTValidator struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string
}

// Claims are the JWT claims extracted after validation.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
	Custom    map[string]interface{}
}

func NewJWTValidator(ctx context.Context, jwksURL, issuer, audience string) (*JWTValidator, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", jwksURL, err)
	}
	return &JWTValidator{jwksURL: jwksURL, cache: cache, issuer: issuer, audience: audience}, nil
}

func (v *JWTValidator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("get jwks: %w", err)
	}

	tok, err := jwt.Parse(
		[]byte(tokenString),
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &Claims{Subject: tok.Subject(), ExpiresAt: tok.Expiration(), Custom: make(map[string]interface{})}
	if email, ok := tok.Get("email"); ok {
		if s, ok := email.(string); ok {
			claims.Email = s
		}
	}
	for it := tok.Iterate(ctx); it.Next(ctx); {
		pair := it.Pair()
		key, _ := pair.Key.(string)
		switch key {
		case "sub", "email", "iss", "aud", "exp", "iat", "nbf":
		default:
			claims.Custom[key] = pair.Value
		}
	}
	return claims, nil
}
