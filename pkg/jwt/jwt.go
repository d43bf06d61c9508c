package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is wrapped by ParseAccessToken when a well-formed token has expired
var ErrTokenExpired = jwt.ErrTokenExpired

// Claims represents the claims the agent reads from a bearer token
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Category string `json:"category"`
	jwt.RegisteredClaims
}

// Service decodes bearer tokens issued by the CharruaBus API
type Service struct {
	secret string
}

// NewService creates a new JWT service. An empty secret disables signature checks.
func NewService(secret string) *Service {
	return &Service{secret: secret}
}

// Verifies reports whether signatures are checked
func (s *Service) Verifies() bool {
	return s.secret != ""
}

// ParseAccessToken returns the claims of a bearer token.
// With a secret configured the token is fully validated, otherwise only decoded.
func (s *Service) ParseAccessToken(tokenString string) (*Claims, error) {
	if !s.Verifies() {
		claims, err := s.ExtractClaims(tokenString)
		if err != nil {
			return nil, err
		}
		if isExpired(claims) {
			return nil, fmt.Errorf("failed to parse token: %w", ErrTokenExpired)
		}
		return claims, s.checkSubject(claims)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, s.checkSubject(claims)
}

// checkSubject falls back to the registered subject when no user_id claim is present
func (s *Service) checkSubject(claims *Claims) error {
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return fmt.Errorf("token carries no user id")
	}
	return nil
}

// ExtractClaims extracts claims from a token without validation
func (s *Service) ExtractClaims(tokenString string) (*Claims, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// IsTokenExpired checks if a token is expired
func (s *Service) IsTokenExpired(tokenString string) bool {
	claims, err := s.ExtractClaims(tokenString)
	if err != nil {
		return true
	}
	return isExpired(claims)
}

// GetTokenExpiry returns the expiry time of a token
func (s *Service) GetTokenExpiry(tokenString string) (time.Time, error) {
	claims, err := s.ExtractClaims(tokenString)
	if err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no expiry time")
	}

	return claims.ExpiresAt.Time, nil
}

// tokens without exp never expire client-side; the API decides
func isExpired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Time.Before(time.Now())
}
