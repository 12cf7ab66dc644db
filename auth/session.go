package auth

import (
	"net/http"

	"photogallery/config"

	"github.com/gin-contrib/sessions"
	gormsessions "github.com/gin-contrib/sessions/gorm"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	userIDKey         = "id"
	SessionCookieName = "gallery_session"
)

// NewSessionStore keeps sessions in the database; expired rows are cleaned
// up periodically by the store
func NewSessionStore(db *gorm.DB, cfg config.Config) sessions.Store {
	secret := cfg.SessionSecret
	if secret == "" {
		secret = "debug-session-secret"
	}
	store := gormsessions.NewStore(db, true, []byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.SessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.TLSDomains != "",
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

func Sessions(store sessions.Store) gin.HandlerFunc {
	return sessions.Sessions(SessionCookieName, store)
}

type Session struct {
	sessions.Session
}

func LoadSession(c *gin.Context) *Session {
	return &Session{
		Session: sessions.Default(c),
	}
}

func (s *Session) LoginUser(id uint64) error {
	s.Clear()
	s.Set(userIDKey, id)
	return s.Save()
}

func (s *Session) LogoutUser() error {
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	return s.Save()
}

// UserID is 0 when nobody is logged in
func (s *Session) UserID() uint64 {
	id, _ := s.Get(userIDKey).(uint64)
	return id
}
