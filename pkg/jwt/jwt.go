package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Service issues and verifies HS256 tokens.
type Service struct {
	key    []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIssuer sets the iss claim on issued tokens and requires it on parsed ones.
func WithIssuer(iss string) Option {
	return func(s *Service) { s.issuer = iss }
}

// WithLeeway tolerates clock drift when checking exp and nbf.
func WithLeeway(d time.Duration) Option {
	return func(s *Service) { s.leeway = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service signing with key.
func New(key string, opts ...Option) (*Service, error) {
	if key == "" {
		return nil, ErrMissingSigningKey
	}
	s := &Service{key: []byte(key), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a token for the principal valid for ttl. A zero ttl issues a
// token without expiry.
func (s *Service) Issue(p Principal, ttl time.Duration) (string, error) {
	if p.UserID == "" {
		return "", ErrMissingSubject
	}
	now := s.now()
	claims := Claims{
		TeamID: p.TeamID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:  p.UserID,
			Issuer:   s.issuer,
			IssuedAt: jwtlib.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwtlib.NewNumericDate(now.Add(ttl))
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.key)
}

// Parse verifies token and returns the principal it names.
func (s *Service) Parse(token string) (Principal, error) {
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.now),
		jwtlib.WithLeeway(s.leeway),
	}
	if s.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.issuer))
	}

	var claims Claims
	_, err := jwtlib.ParseWithClaims(token, &claims, func(*jwtlib.Token) (any, error) {
		return s.key, nil
	}, opts...)
	switch {
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return Principal{}, errors.Join(ErrExpiredToken, err)
	case err != nil:
		return Principal{}, errors.Join(ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Principal{}, ErrMissingSubject
	}
	return Principal{UserID: claims.Subject, TeamID: claims.TeamID}, nil
}
