package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tjfontaine/account-gateway/internal/domain"
)

// JWTResolver validates HMAC-signed bearer JWTs. The subject claim becomes
// the user id.
type JWTResolver struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// JWTOption configures a JWTResolver.
type JWTOption func(*JWTResolver)

// WithIssuer requires tokens to carry the given iss claim.
func WithIssuer(issuer string) JWTOption {
	return func(j *JWTResolver) { j.issuer = issuer }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) JWTOption {
	return func(j *JWTResolver) { j.now = now }
}

// NewJWTResolver creates a resolver for tokens signed with secret.
func NewJWTResolver(secret []byte, opts ...JWTOption) (*JWTResolver, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret required")
	}
	j := &JWTResolver{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Resolve implements Resolver.
func (j *JWTResolver) Resolve(_ context.Context, r *http.Request) (Context, error) {
	raw, err := ExtractBearer(r)
	if err != nil {
		return Context{}, err
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if j.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	}, parserOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Context{}, domain.ErrExpired("token expired").WithCause(err)
		}
		return Context{}, domain.ErrUnauthenticated("invalid token").WithCause(err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Context{}, domain.ErrUnauthenticated("token has no subject")
	}

	out := make(map[string]any, len(claims)+1)
	for k, v := range claims {
		out[k] = v
	}
	out["auth_method"] = "jwt"
	return NewContext(sub, out), nil
}

// IssueToken signs an HS256 token for subject valid for ttl. Extra claims are
// merged in without overriding the registered ones.
func IssueToken(secret []byte, subject, issuer string, ttl time.Duration, extra map[string]any) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	if issuer != "" {
		claims["iss"] = issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
