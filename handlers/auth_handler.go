package handlers

import (
	"errors"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"school-evoting-backend/cache"
	"school-evoting-backend/service"
)

const sessionCookieName = "evote_session"

// context keys set by the session middleware
const (
	ctxVoterID       = "voter_id"
	ctxStudentNumber = "student_number"
	ctxRole          = "role"
)

var (
	adminPasswordHash []byte
	adminInitOnce     sync.Once
)

// adminCredentials loads the admin password hash from the environment.
// ADMIN_PASSWORD_HASH takes precedence; a plaintext ADMIN_PASSWORD is
// hashed at startup so the plaintext never sticks around for comparison.
func adminCredentials() (string, []byte) {
	adminInitOnce.Do(func() {
		if h := os.Getenv("ADMIN_PASSWORD_HASH"); h != "" {
			adminPasswordHash = []byte(h)
			return
		}
		password := os.Getenv("ADMIN_PASSWORD")
		if password == "" {
			log.Println("warning: ADMIN_PASSWORD not set, admin login disabled")
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("hashing admin password failed: %v", err)
			return
		}
		adminPasswordHash = hash
	})

	username := os.Getenv("ADMIN_USERNAME")
	if username == "" {
		username = "admin"
	}
	return username, adminPasswordHash
}

// LoginInput is a student login request.
type LoginInput struct {
	StudentNumber string `json:"student_number" binding:"required"`
	Secret        string `json:"secret" binding:"required"`
}

// Login verifies a student number and voting token secret, then issues a
// session cookie. Used tokens get a distinct message so a student who
// already voted is not told their credentials are wrong.
func Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "student number and token are required"})
		return
	}

	if !allowLoginAttempt(c, input.StudentNumber) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, try again later"})
		return
	}

	// bloom prefilter: a secret that was never issued skips the database
	if filter := cache.InitTokenBloomFilter(); filter != nil {
		if exists, err := filter.Contains(c, input.Secret); err == nil && !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid student number or token"})
			return
		}
	}

	voter, err := authSvc.Authenticate(c.Request.Context(), input.StudentNumber, input.Secret)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenUsed):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "this token has already been used to vote"})
		case errors.Is(err, service.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid student number or token"})
		default:
			log.Printf("login failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	sessionID, err := cache.CreateSession(c.Request.Context(), cache.Session{
		VoterID:       voter.ID,
		StudentNumber: voter.StudentNumber,
		Role:          cache.RoleVoter,
	})
	if err != nil {
		log.Printf("creating session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	setSessionCookie(c, sessionID)
	c.JSON(http.StatusOK, gin.H{
		"student_number": voter.StudentNumber,
		"name":           voter.Name,
		"has_voted":      voter.HasVoted,
	})
}

// AdminLoginInput is an admin login request.
type AdminLoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminLogin verifies the configured admin credentials and issues an
// admin-role session cookie.
func AdminLogin(c *gin.Context) {
	var input AdminLoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	username, hash := adminCredentials()
	if hash == nil || input.Username != username ||
		bcrypt.CompareHashAndPassword(hash, []byte(input.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	sessionID, err := cache.CreateSession(c.Request.Context(), cache.Session{Role: cache.RoleAdmin})
	if err != nil {
		log.Printf("creating admin session failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	setSessionCookie(c, sessionID)
	c.JSON(http.StatusOK, gin.H{"role": cache.RoleAdmin})
}

// Logout deletes the server-side session and clears the cookie.
func Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(sessionCookieName); err == nil {
		if err := cache.DeleteSession(c.Request.Context(), sessionID); err != nil {
			log.Printf("deleting session failed: %v", err)
		}
	}
	c.SetCookie(sessionCookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

// Me returns the identity behind the current session.
func Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"student_number": c.GetString(ctxStudentNumber),
		"role":           c.GetString(ctxRole),
	})
}

func setSessionCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookieName, sessionID, int(cache.SessionTTL.Seconds()), "/", "", false, true)
}

// RequireVoter rejects requests without a valid voter session.
func RequireVoter() gin.HandlerFunc {
	return requireRole(cache.RoleVoter)
}

// RequireAdmin rejects requests without a valid admin session.
func RequireAdmin() gin.HandlerFunc {
	return requireRole(cache.RoleAdmin)
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(sessionCookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
			return
		}

		session, err := cache.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, cache.ErrSessionNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			} else {
				log.Printf("loading session failed: %v", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
			}
			return
		}

		if session.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient privileges"})
			return
		}

		c.Set(ctxVoterID, session.VoterID)
		c.Set(ctxStudentNumber, session.StudentNumber)
		c.Set(ctxRole, session.Role)
		c.Next()
	}
}
