package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const AdminScope = "guard:admin"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
	ErrMissingScope = errors.New("token lacks admin scope")
)

type (
	Manager interface {
		CreateToken(subject string, ttl time.Duration) (string, error)
		ValidateToken(tokenString string) error
		DecodeToken(tokenString string) (*Claims, error)
	}
	manager struct {
		secret       []byte
		timeProvider func() time.Time
	}
)

type Opts struct {
	TimeProvider func() time.Time
}

type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

func NewJwtManager(secret string, opts *Opts) Manager {
	m := &manager{
		secret:       []byte(secret),
		timeProvider: time.Now,
	}
	if opts != nil && opts.TimeProvider != nil {
		m.timeProvider = opts.TimeProvider
	}
	return m
}

// CreateToken issues an admin token. A zero ttl issues a token without expiry.
func (m *manager) CreateToken(subject string, ttl time.Duration) (string, error) {
	now := m.timeProvider()
	claims := &Claims{
		Scope: AdminScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *manager) ValidateToken(tokenString string) error {
	claims, err := m.DecodeToken(tokenString)
	if err != nil {
		return err
	}
	if claims.Scope != AdminScope {
		return ErrMissingScope
	}
	return nil
}

func (m *manager) DecodeToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return m.secret, nil
		},
		jwt.WithTimeFunc(m.timeProvider),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
