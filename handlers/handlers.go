// Package handlers holds the gin handlers of the gallery HTTP API.
package handlers

import (
	"log/slog"
	"net/http"

	"photogallery/access"
	"photogallery/auth"
	"photogallery/derivative"
	"photogallery/errs"
	"photogallery/gallery"
	"photogallery/processing"
	"photogallery/ratelimit"
	"photogallery/storage"
	"photogallery/transform"
	"photogallery/utils"

	"github.com/gin-gonic/gin"
)

type Response struct {
	Error string `json:"error"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Server carries the dependencies shared by all handlers
type Server struct {
	Store       storage.BlobStore
	Policy      *access.Policy
	Cache       *derivative.Cache
	Transformer transform.Transformer
	Gallery     *gallery.Service
	Ingester    *processing.Ingester
	Users       *auth.Users
	Limiter     ratelimit.Limiter // nil disables rate limiting
	Logger      *slog.Logger

	DefaultPageSize int
	MaxPageSize     int
	OutputFormat    string
	OutputQuality   int
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// abortWithError answers with the error's status and user-safe message
func (s *Server) abortWithError(c *gin.Context, err error) {
	status := errs.Status(err)
	if status >= http.StatusInternalServerError {
		s.logger().ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", utils.RequestIDOf(c),
			"error", err)
	}
	c.AbortWithStatusJSON(status, Response{errs.Message(err)})
}

// Register adds every route to the engine
func (s *Server) Register(engine *gin.Engine) {
	router := &auth.Router{Base: engine, Users: s.Users}

	// Blob and derivative delivery
	router.GET("/images/*pathname", s.ServeImage, auth.LevelPublic)
	router.GET("/private/cdn-cgi/image/:params/*path", s.ServeDerivative, auth.LevelPublic)

	// Auth
	engine.POST("/api/auth/login", s.UserLogin)
	engine.POST("/api/auth/register", s.UserRegister)
	engine.POST("/api/auth/logout", s.UserLogout)
	engine.POST("/api/auth/request-code", ratelimit.Middleware(s.Limiter, "request-code"), s.UserRequestCode)
	engine.GET("/api/auth/verify", s.UserVerify)
	router.GET("/api/auth/me", s.UserMe, auth.LevelUser)

	// Admin
	router.GET("/api/admin/users", s.UserList, auth.LevelAdmin)
	router.POST("/api/admin/users", s.UserCreate, auth.LevelAdmin)
	router.GET("/api/admin/users-for-album-access", s.UsersForAlbumAccess, auth.LevelAdmin)

	// Albums
	router.GET("/api/albums", s.AlbumList, auth.LevelPublic)
	router.POST("/api/albums", s.AlbumCreate, auth.LevelAdmin)
	router.GET("/api/albums/:album", s.AlbumGet, auth.LevelPublic)
	router.PUT("/api/albums/:album", s.AlbumUpdate, auth.LevelAdmin)
	router.DELETE("/api/albums/:album", s.AlbumDelete, auth.LevelAdmin)
	router.GET("/api/albums/:album/images", s.ImageList, auth.LevelPublic)
	router.POST("/api/albums/:album/images", s.ImageUpload, auth.LevelAdmin)
	router.DELETE("/api/albums/:album/images/*image", s.ImageDelete, auth.LevelAdmin)
	router.GET("/api/albums/:album/access", s.AccessList, auth.LevelAdmin)
	router.POST("/api/albums/:album/access", s.AccessGrant, auth.LevelAdmin)
	router.DELETE("/api/albums/:album/access/:id", s.AccessRevoke, auth.LevelAdmin)
}
