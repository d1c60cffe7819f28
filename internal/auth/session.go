// Package auth binds a user identity to each HTTP session. Login is a development
// stand-in for an external auth service: it trusts the posted user id.
package auth

import (
	"net/http"

	"github.com/dkeye/Ring/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionKey = "user_id"
	contextKey = "ring_user"
)

// Authenticator resolves the identity of the caller of a request.
type Authenticator interface {
	Identify(c *gin.Context) (domain.UserID, bool)
}

// Sessions reads the identity stored by Login in the gin-contrib session.
type Sessions struct{}

func (Sessions) Identify(c *gin.Context) (domain.UserID, bool) {
	raw, ok := sessions.Default(c).Get(sessionKey).(string)
	if !ok {
		return "", false
	}
	uid, err := domain.ParseUserID(raw)
	if err != nil {
		return "", false
	}
	return uid, true
}

type LoginRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid user_id"})
		return
	}
	uid, err := domain.ParseUserID(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s := sessions.Default(c)
	s.Set(sessionKey, uid.String())
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "auth").Msg("session save")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	log.Info().Str("module", "auth").Str("user", uid.String()).Msg("login")
	c.JSON(http.StatusOK, gin.H{"user_id": uid})
}

func Logout(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = s.Save()
	c.Status(http.StatusNoContent)
}

// Require rejects requests without an identity and stores it for UserFrom.
func Require(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := a.Identify(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}
		c.Set(contextKey, uid)
		c.Next()
	}
}

func UserFrom(c *gin.Context) domain.UserID {
	uid, _ := c.Get(contextKey)
	u, _ := uid.(domain.UserID)
	return u
}
