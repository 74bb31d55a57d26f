package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"glamtrack/internal/domain"
)

const userClaimsKey = "userClaims"

// ErrInvalidToken is returned when a JWT fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// UserClaims is the identity extracted from a verified token.
type UserClaims struct {
	UserID string
	Role   domain.Subject
}

// ParseToken verifies an HMAC-signed JWT and extracts the user claims.
func ParseToken(tokenString, secret string) (UserClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return UserClaims{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return UserClaims{}, ErrInvalidToken
	}

	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	if userID == "" {
		return UserClaims{}, ErrInvalidToken
	}

	subject := domain.SubjectCustomer
	if strings.EqualFold(role, string(domain.SubjectProfessional)) {
		subject = domain.SubjectProfessional
	}

	return UserClaims{UserID: userID, Role: subject}, nil
}

// AuthMiddleware returns middleware that verifies the bearer token and
// stores the resulting claims on the request context.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(userClaimsKey, claims)
		c.Next()
	}
}

// UserFromContext returns the claims set by AuthMiddleware.
func UserFromContext(c *gin.Context) (UserClaims, bool) {
	value, ok := c.Get(userClaimsKey)
	if !ok {
		return UserClaims{}, false
	}
	claims, ok := value.(UserClaims)
	return claims, ok
}

// bearerToken pulls the token from the Authorization header, falling
// back to the query parameter used by websocket clients.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
