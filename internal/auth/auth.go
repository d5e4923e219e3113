package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"chatapp/internal/models"
)

const (
	// CookieName is the session cookie carrying the signed token.
	CookieName = "jwt"

	contextUserKey = "auth.user"
)

// UserSource resolves an authenticated identity to its user record.
type UserSource interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type Middleware struct {
	secret []byte
	users  UserSource
}

func NewMiddleware(secret []byte, users UserSource) *Middleware {
	return &Middleware{secret: secret, users: users}
}

// RequireAuth resolves the caller's identity from the session cookie
// and stores the user on the request context. Requests without a valid
// session are rejected before any handler runs.
func (m *Middleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(CookieName)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - No Token Provided"})
			return
		}

		userID, err := m.parseUserID(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - Invalid Token"})
			return
		}

		user, err := m.users.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized - User Not Found"})
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

func (m *Middleware) parseUserID(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("token has no userId claim")
	}
	return userID, nil
}

// SignToken mints a session token for a user id. Used by tests and by
// whatever signup/login surface sits in front of this service.
func (m *Middleware) SignToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"userId": userID})
	return token.SignedString(m.secret)
}

// CurrentUser returns the user resolved by RequireAuth.
func CurrentUser(c *gin.Context) *models.User {
	val, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := val.(*models.User)
	return user
}
