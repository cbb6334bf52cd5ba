package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/Habib-0007/CSC-320-Mini-Project/server/pkg/models"
)

const principalKey = "principal"

// Claims are the bearer token claims issued by the auth service.
type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role"`
	Plan   models.Plan `json:"plan"`
}

// IssueToken signs an HS256 token for p that expires after ttl.
func IssueToken(secret string, p models.Principal, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: p.ID,
		Email:  p.Email,
		Role:   p.Role,
		Plan:   p.Plan,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates tokenString against secret and returns its principal.
func ParseToken(secret, tokenString string) (models.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Principal{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return models.Principal{}, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return models.Principal{}, errors.New("token has no user id")
	}
	return models.Principal{ID: claims.UserID, Email: claims.Email, Role: claims.Role, Plan: claims.Plan}, nil
}

// AuthMiddleware returns a Gin middleware handler that resolves the principal
// from an "Authorization: Bearer <jwt>" header. A missing token is answered
// with 401, an invalid or expired one with 403.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		tokenString := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if auth == "" || tokenString == "" || tokenString == auth {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authentication required.",
			})
			return
		}

		principal, err := ParseToken(secret, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid or expired token.",
			})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal resolved by AuthMiddleware.
func PrincipalFrom(c *gin.Context) (models.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	p, ok := v.(models.Principal)
	return p, ok
}

// RequirePlan rejects principals not on plan.
func RequirePlan(plan models.Plan) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || p.Plan != plan {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("%s subscription required.", titleCase(string(plan))),
			})
			return
		}
		c.Next()
	}
}

// RequireRole rejects principals without role.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok || p.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": fmt.Sprintf("%s access required.", titleCase(string(role))),
			})
			return
		}
		c.Next()
	}
}

// titleCase turns "PREMIUM" into "Premium".
func titleCase(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
