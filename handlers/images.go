package handlers

import (
	"context"
	"net/http"
	"strings"

	"photogallery/access"
	"photogallery/derivative"
	"photogallery/models"
	"photogallery/storage"
	"photogallery/transform"
	"photogallery/utils"

	"github.com/gin-gonic/gin"
)

const imageCSP = "default-src 'none';"

// checkPath applies the access policy to a blob key
func (s *Server) checkPath(c *gin.Context, key string, user *models.User) bool {
	decision, err := s.Policy.CanAccessPath(c.Request.Context(), key, user)
	if err != nil {
		s.abortWithError(c, err)
		return false
	}
	if decision != access.Allow {
		s.abortWithError(c, decision.Err())
		return false
	}
	return true
}

func (s *Server) writeImage(c *gin.Context, data []byte, contentType string) {
	c.Header("Content-Security-Policy", imageCSP)
	c.Header("X-Content-Type-Options", "nosniff")
	utils.SetCacheTime(c, utils.CacheWeek)
	c.Data(http.StatusOK, contentType, data)
}

// ServeImage returns a stored object verbatim
func (s *Server) ServeImage(c *gin.Context, user *models.User) {
	key := strings.TrimPrefix(c.Param("pathname"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, Response{"Pathname is required"})
		return
	}
	key, err := storage.CleanPath(key)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !s.checkPath(c, key, user) {
		return
	}
	blob, err := s.Store.Get(c.Request.Context(), key)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	s.writeImage(c, blob.Data, blob.ContentType)
}

// ServeDerivative returns a resized version of an image, creating and caching it on first use
func (s *Server) ServeDerivative(c *gin.Context, user *models.User) {
	originalPath, err := storage.CleanPath(strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if !s.checkPath(c, originalPath, user) {
		return
	}
	key, err := derivative.ParseKey(c.Param("params"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if _, err = transform.ParseOptions(key.ToCapability()); err != nil {
		s.abortWithError(c, err)
		return
	}
	ctx := c.Request.Context()
	if !transform.Enabled(s.Transformer) {
		blob, err := s.Store.Get(ctx, originalPath)
		if err != nil {
			s.abortWithError(c, err)
			return
		}
		s.writeImage(c, blob.Data, blob.ContentType)
		return
	}
	result, err := s.Cache.GetOrCreate(ctx, originalPath, key, s.derive)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	if result.Hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	s.writeImage(c, result.Data, result.ContentType)
}

func (s *Server) derive(ctx context.Context, original *storage.Blob, params map[string]string) (transform.Result, error) {
	opts, err := transform.ParseOptions(params)
	if err != nil {
		return transform.Result{}, err
	}
	if opts.Format == "" {
		opts.Format = s.OutputFormat
	}
	if opts.Quality == 0 {
		opts.Quality = s.OutputQuality
	}
	return s.Transformer.Transform(ctx, original.Data, opts)
}
