package admin

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const sessionEditorKey = "editor"

// AdminModule guards the editing API. With an empty password hash every
// request is let through, which matches the historical open API.
type AdminModule struct {
	passwordHash string
	limiter      *loginLimiter
}

// NewAdminModule allows loginsPerMinute login attempts per client IP.
func NewAdminModule(passwordHash string, loginsPerMinute int) *AdminModule {
	if passwordHash == "" {
		slog.Warn("EDITOR_PASSWORD_HASH not set, page editing API is open to everyone")
	}
	return &AdminModule{
		passwordHash: passwordHash,
		limiter:      newLoginLimiter(loginsPerMinute),
	}
}

// Enabled reports whether editor authentication is enforced.
func (a *AdminModule) Enabled() bool {
	return a.passwordHash != ""
}

func (a *AdminModule) RegisterRoutes(router gin.IRouter) {
	adminGroup := router.Group("/admin")
	{
		adminGroup.POST("/login", a.loginPost)
		adminGroup.POST("/logout", a.logout)
		adminGroup.GET("/session", a.session)
	}
}

// RequireEditor rejects requests without an editor session.
func (a *AdminModule) RequireEditor(c *gin.Context) {
	if !a.Enabled() {
		c.Next()
		return
	}

	session := sessions.Default(c)
	if session.Get(sessionEditorKey) != true {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Pro úpravy je nutné přihlášení"})
		return
	}

	c.Next()
}

func (a *AdminModule) loginPost(c *gin.Context) {
	if !a.Enabled() {
		c.JSON(http.StatusOK, gin.H{"success": true, "auth_enabled": false})
		return
	}

	if !a.limiter.allow(c.ClientIP()) {
		slog.Warn("editor login rate limited", "ip", c.ClientIP())
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Příliš mnoho pokusů o přihlášení, zkuste to později"})
		return
	}

	var request struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Chybí heslo"})
		return
	}

	if !checkPasswordHash(request.Password, a.passwordHash) {
		slog.Warn("failed editor login", "ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Nesprávné heslo"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionEditorKey, true)
	if err := session.Save(); err != nil {
		slog.Error("error saving editor session", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Nepodařilo se přihlásit"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "auth_enabled": true})
}

func (a *AdminModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		slog.Error("error clearing editor session", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *AdminModule) session(c *gin.Context) {
	authenticated := !a.Enabled() || sessions.Default(c).Get(sessionEditorKey) == true

	c.JSON(http.StatusOK, gin.H{
		"authenticated": authenticated,
		"auth_enabled":  a.Enabled(),
	})
}

// HashPassword returns the bcrypt hash to put into EDITOR_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
