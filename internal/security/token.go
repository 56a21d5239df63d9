package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"artmarket_chat/internal/domain"
)

// Claims is the token body issued by the authentication subsystem.
type Claims struct {
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// TokenService wraps JWT validation for the principals handed to us by
// the authentication subsystem.
type TokenService struct {
	secret    []byte
	expiresIn time.Duration
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	return &TokenService{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// CreateForUser signs a token for u using the default TTL. Production tokens
// come from the authentication subsystem; this mints compatible ones for
// tooling and tests.
func (t *TokenService) CreateForUser(u *domain.User) (string, error) {
	return t.CreateWithTTL(u, t.expiresIn)
}

// CreateWithTTL signs a token for u with an explicit TTL.
func (t *TokenService) CreateWithTTL(u *domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:   u.Name,
		Avatar: u.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns the principal it names.
func (t *TokenService) Parse(tokenStr string) (*domain.User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &domain.User{
		ID:     claims.Subject,
		Name:   claims.Name,
		Avatar: claims.Avatar,
	}, nil
}
