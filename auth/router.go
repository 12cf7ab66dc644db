package auth

import (
	"errors"
	"net/http"

	"photogallery/errs"
	"photogallery/models"

	"github.com/gin-gonic/gin"
)

// HandlerFunc receives the user loaded from the session. It is nil on
// public routes when nobody is logged in.
type HandlerFunc func(c *gin.Context, user *models.User)

type Level uint8

const (
	LevelPublic Level = iota // user optional
	LevelUser
	LevelAdmin
)

type errorResponse struct {
	Error string `json:"error"`
}

// Router wraps gin routes with session user loading and permission checks
type Router struct {
	Base  gin.IRoutes
	Users *Users
}

// CurrentUser loads the session user; stale session ids count as anonymous
func (r *Router) CurrentUser(c *gin.Context) (*models.User, error) {
	id := LoadSession(c).UserID()
	if id == 0 {
		return nil, nil
	}
	user, err := r.Users.ByID(c.Request.Context(), id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func (r *Router) wrap(handler HandlerFunc, level Level) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := r.CurrentUser(c)
		if err != nil {
			c.AbortWithStatusJSON(errs.Status(err), errorResponse{errs.Message(err)})
			return
		}
		switch {
		case level >= LevelUser && user == nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{"Unauthorized: Authentication required"})
			return
		case level == LevelAdmin && !user.IsAdmin():
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{"Forbidden: Admin access required"})
			return
		}
		handler(c, user)
	}
}

func (r *Router) GET(path string, handler HandlerFunc, level Level) {
	r.Base.GET(path, r.wrap(handler, level))
}

func (r *Router) POST(path string, handler HandlerFunc, level Level) {
	r.Base.POST(path, r.wrap(handler, level))
}

func (r *Router) PUT(path string, handler HandlerFunc, level Level) {
	r.Base.PUT(path, r.wrap(handler, level))
}

func (r *Router) DELETE(path string, handler HandlerFunc, level Level) {
	r.Base.DELETE(path, r.wrap(handler, level))
}
