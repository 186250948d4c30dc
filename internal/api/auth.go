// Package api implements the HTTP surface (spec §6): JWT auth, order
// execution, backtest (sync/async/multi-market), strategy parameter,
// user-strategy-selection, API key, and dashboard routes atop gin,
// grounded on the teacher's gateway router and HFT security manager.
package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Claims is this engine's JWT claim set.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService issues and validates bearer tokens and hashes API
// passphrases, grounded on the teacher's HFTSecurityManager.
type AuthService struct {
	secret      []byte
	tokenExpiry time.Duration
	log         *zap.Logger
}

// NewAuthService builds an AuthService. secret must be non-empty.
func NewAuthService(secret string, tokenExpiry time.Duration, log *zap.Logger) (*AuthService, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if tokenExpiry <= 0 {
		tokenExpiry = time.Hour
	}
	return &AuthService{secret: []byte(secret), tokenExpiry: tokenExpiry, log: log}, nil
}

// IssueToken signs a bearer token for (userID, role).
func (s *AuthService) IssueToken(userID, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenExpiry)
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "tradsys-core",
			Subject:   userID,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, expiresAt, err
}

// ValidateToken parses and verifies a bearer token.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// HashPassphrase hashes an API passphrase with bcrypt.
func (s *AuthService) HashPassphrase(passphrase string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	return string(hash), err
}

// VerifyPassphrase checks passphrase against its bcrypt hash.
func (s *AuthService) VerifyPassphrase(passphrase, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(passphrase)) == nil
}

// RequireAuth is gin middleware enforcing a valid bearer token, setting
// "user_id" and "role" in the request context.
func (s *AuthService) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header is required"})
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}
		claims, err := s.ValidateToken(parts[1])
		if err != nil {
			s.log.Debug("token validation failed", zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// RequireRole gates a route group to one of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		roleStr, _ := role.(string)
		for _, r := range roles {
			if r == roleStr {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		c.Abort()
	}
}

// UserIDFromContext extracts the authenticated caller's user ID.
func UserIDFromContext(c *gin.Context) string {
	v, _ := c.Get("user_id")
	s, _ := v.(string)
	return s
}

// RoleOf extracts the authenticated caller's role.
func RoleOf(c *gin.Context) string {
	v, _ := c.Get("role")
	s, _ := v.(string)
	return s
}
