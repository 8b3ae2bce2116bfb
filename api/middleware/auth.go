package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"legal-analyzer/pkg/logger"
)

var errMalformedHeader = errors.New("invalid authorization header format")

// AuthConfig controls owner resolution. With an empty secret every request is
// anonymous.
type AuthConfig struct {
	JWTSecret string
	// Required rejects requests that carry no bearer token.
	Required bool
}

// Auth verifies an HS256 bearer token and takes its subject as the document
// owner. Tokens without a subject, such as anonymous API keys, leave the
// request anonymous; services then scope it to anonymous uploads.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			if cfg.Required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				return
			}
			c.Next()
			return
		}

		owner, err := parseOwner(header, cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if owner == "" && cfg.Required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			return
		}
		if owner != "" {
			c.Set(string(logger.OwnerKey), owner)
			c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.OwnerKey, owner))
		}
		c.Next()
	}
}

func parseOwner(header, secret string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errMalformedHeader
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// GetOwner returns the authenticated owner, or "" for anonymous requests.
func GetOwner(c *gin.Context) string {
	return c.GetString(string(logger.OwnerKey))
}
