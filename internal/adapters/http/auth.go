package http

import (
	"fmt"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/sumohast/meet-room/internal/domain"
)

// IdentityMiddleware resolves the authenticated identity, if any, and
// stores it as *domain.User under "user". The cookie session is shared
// with the booking app; a JWT bearer token is the fallback for
// non-browser clients. Anonymous requests pass through with no "user"
// set; routes that need identity refuse them later.
func IdentityMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := userFromSession(c); user != nil {
			c.Set("user", user)
			c.Next()
			return
		}
		if user := userFromBearer(c, secret); user != nil {
			c.Set("user", user)
		}
		c.Next()
	}
}

func userFromSession(c *gin.Context) *domain.User {
	sess := sessions.Default(c)
	id, _ := sess.Get("user_id").(string)
	username, _ := sess.Get("username").(string)
	if id == "" || username == "" {
		return nil
	}
	user, err := domain.NewUser(domain.UserID(id), username)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Str("user_id", id).Msg("bad session identity")
		return nil
	}
	return user
}

func userFromBearer(c *gin.Context, secret string) *domain.User {
	header := c.GetHeader("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	if sub == "" || username == "" {
		return nil
	}
	user, err := domain.NewUser(domain.UserID(sub), username)
	if err != nil {
		return nil
	}
	return user
}

// RequireIdentity guards REST endpoints that must not serve anonymous
// callers.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get("user"); !ok {
			c.AbortWithStatusJSON(401, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}
