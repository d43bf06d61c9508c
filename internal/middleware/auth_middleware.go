package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charruabus/booking-agent/internal/models"
	"github.com/charruabus/booking-agent/internal/services"
	"github.com/charruabus/booking-agent/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// UserContextKey is the key used to store user information in Gin context
	UserContextKey = "user"
	// BookingSessionKey is the key of the caller's booking session
	BookingSessionKey = "booking_session"
	// SessionExpiresHeader tells the host when to re-authenticate
	SessionExpiresHeader = "X-Session-Expires-At"
)

// UserContext represents the authenticated user's information
type UserContext struct {
	UserID   string                  `json:"user_id"`
	Email    string                  `json:"email"`
	Category models.DiscountCategory `json:"category"`
}

// Profile returns the user profile the booking flow works with
func (u UserContext) Profile() models.UserProfile {
	return models.UserProfile{ID: u.UserID, Email: u.Email, Category: u.Category}
}

// AuthMiddleware reads the CharruaBus bearer token, binds the caller's
// booking session and renews its credential
func AuthMiddleware(jwtService *jwt.Service, registry *services.BookingRegistry, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.WithFields(logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   c.ClientIP(),
		})

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("AUTH FAILED: Missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			log.Warn("AUTH FAILED: Invalid auth format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}
		tokenString := strings.TrimSpace(parts[1])

		claims, err := jwtService.ParseAccessToken(tokenString)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				log.WithError(err).Info("AUTH FAILED: Token expired")
				abortUnauthorized(c, "session_expired", "Session expired. Please sign in again.", "SESSION_EXPIRED")
			} else {
				log.WithError(err).Warn("AUTH FAILED: Invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid access token", "INVALID_TOKEN")
			}
			return
		}

		user := UserContext{
			UserID:   claims.UserID,
			Email:    claims.Email,
			Category: models.ParseDiscountCategory(claims.Category),
		}
		c.Set(UserContextKey, user)
		c.Set("user_id", user.UserID)
		if expiry, err := jwtService.GetTokenExpiry(tokenString); err == nil {
			c.Header(SessionExpiresHeader, expiry.UTC().Format(time.RFC3339))
		}

		if registry != nil {
			c.Set(BookingSessionKey, registry.Acquire(tokenString, user.Profile()))
		}

		c.Next()
	}
}

// GetUserContext retrieves the user context from Gin context
func GetUserContext(c *gin.Context) (UserContext, bool) {
	value, exists := c.Get(UserContextKey)
	if !exists {
		return UserContext{}, false
	}

	userCtx, ok := value.(UserContext)
	if !ok {
		return UserContext{}, false
	}

	return userCtx, true
}

// GetBookingSession retrieves the caller's booking session
func GetBookingSession(c *gin.Context) (*services.BookingSession, bool) {
	value, exists := c.Get(BookingSessionKey)
	if !exists {
		return nil, false
	}
	session, ok := value.(*services.BookingSession)
	return session, ok && session != nil
}

// MustGetBookingSession retrieves the booking session or panics (use only after AuthMiddleware)
func MustGetBookingSession(c *gin.Context) *services.BookingSession {
	session, exists := GetBookingSession(c)
	if !exists {
		panic("booking session not found - ensure AuthMiddleware is applied")
	}
	return session
}

func abortUnauthorized(c *gin.Context, errorKey, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errorKey,
		"message": message,
		"code":    code,
	})
}
