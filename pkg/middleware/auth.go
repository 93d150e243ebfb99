package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/studio-booking/pkg/response"
)

const (
	// ContextKeyUserID is the gin context key holding the authenticated user id
	ContextKeyUserID = "user_id"
	// ContextKeyRole is the gin context key holding the authenticated role
	ContextKeyRole = "role"

	// UserIDHeader and UserRoleHeader are set by the API gateway after it
	// verified the token
	UserIDHeader   = "X-User-ID"
	UserRoleHeader = "X-User-Role"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the token claims the booking API relies on
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	Secret string
	Issuer string
	// TrustGatewayHeaders accepts X-User-ID / X-User-Role when no bearer
	// token is present
	TrustGatewayHeaders bool
}

// Auth authenticates the caller and stores user id and role in the context
func Auth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && cfg.TrustGatewayHeaders {
			if userID := c.GetHeader(UserIDHeader); userID != "" {
				c.Set(ContextKeyUserID, userID)
				c.Set(ContextKeyRole, c.GetHeader(UserRoleHeader))
				c.Next()
				return
			}
		}

		claims, err := ParseToken(header, cfg)
		if err != nil {
			response.Unauthorized(c, err.Error())
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// ParseToken validates an "Authorization: Bearer <jwt>" header value
func ParseToken(header string, cfg *AuthConfig) (*Claims, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserID returns the authenticated user id
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}

// GetRole returns the authenticated role, empty when unknown
func GetRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}
