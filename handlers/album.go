package handlers

import (
	"io"
	"net/http"
	"strconv"

	"photogallery/access"
	"photogallery/errs"
	"photogallery/gallery"
	"photogallery/models"
	"photogallery/processing"

	"github.com/gin-gonic/gin"
)

type AlbumCreateRequest struct {
	Name     string `json:"name"`
	IsPublic *bool  `json:"isPublic"`
}

type AlbumUpdateRequest struct {
	Title    *string `json:"title"`
	IsPublic *bool   `json:"isPublic"`
}

type AlbumResponse struct {
	Success bool              `json:"success"`
	Album   gallery.AlbumView `json:"album"`
}

type AccessGrantRequest struct {
	UserID uint64 `json:"userId" binding:"required"`
}

type AccessResponse struct {
	Success bool               `json:"success"`
	Access  gallery.AccessView `json:"access"`
}

// album loads the :album route parameter and applies the access policy
func (s *Server) album(c *gin.Context, user *models.User) *models.Album {
	album, err := s.Gallery.Album(c.Request.Context(), c.Param("album"))
	if err != nil {
		s.abortWithError(c, err)
		return nil
	}
	decision, err := s.Policy.CanAccessAlbum(c.Request.Context(), album, user)
	if err != nil {
		s.abortWithError(c, err)
		return nil
	}
	if decision != access.Allow {
		s.abortWithError(c, decision.Err())
		return nil
	}
	return album
}

func (s *Server) AlbumList(c *gin.Context, user *models.User) {
	albums, err := s.Gallery.ListAlbums(c.Request.Context(), user)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	result := make([]gallery.AlbumView, 0, len(albums))
	for i := range albums {
		result = append(result, gallery.NewAlbumView(&albums[i]))
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) AlbumCreate(c *gin.Context, user *models.User) {
	req := AlbumCreateRequest{}
	if !s.bind(c, &req) {
		return
	}
	album, err := s.Gallery.CreateAlbum(c.Request.Context(), req.Name, req.IsPublic)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, AlbumResponse{Success: true, Album: gallery.NewAlbumView(album)})
}

func (s *Server) AlbumGet(c *gin.Context, user *models.User) {
	album := s.album(c, user)
	if album == nil {
		return
	}
	c.JSON(http.StatusOK, gallery.NewAlbumView(album))
}

func (s *Server) AlbumUpdate(c *gin.Context, user *models.User) {
	req := AlbumUpdateRequest{}
	if !s.bind(c, &req) {
		return
	}
	album, err := s.Gallery.UpdateAlbum(c.Request.Context(), c.Param("album"), gallery.AlbumUpdate{
		Title:    req.Title,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, AlbumResponse{Success: true, Album: gallery.NewAlbumView(album)})
}

func (s *Server) AlbumDelete(c *gin.Context, user *models.User) {
	if err := s.Gallery.DeleteAlbum(c.Request.Context(), c.Param("album")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Album and all images deleted successfully"})
}

func (s *Server) ImageList(c *gin.Context, user *models.User) {
	album := s.album(c, user)
	if album == nil {
		return
	}
	paging := gallery.ParsePaging(c.Query("page"), c.Query("pageSize"), s.DefaultPageSize, s.MaxPageSize)
	page, err := s.Gallery.ListImages(c.Request.Context(), album, paging)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ImageUpload ingests the multipart "files" field; the response lists one result per file
func (s *Server) ImageUpload(c *gin.Context, user *models.User) {
	album, err := s.Gallery.Album(c.Request.Context(), c.Param("album"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{"invalid multipart form"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, Response{"No files provided"})
		return
	}
	uploads := make([]processing.Upload, 0, len(files))
	for _, fh := range files {
		fh := fh
		uploads = append(uploads, processing.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	c.JSON(http.StatusOK, s.Ingester.Ingest(c.Request.Context(), album, uploads))
}

func (s *Server) ImageDelete(c *gin.Context, user *models.User) {
	if err := s.Gallery.DeleteImage(c.Request.Context(), c.Param("album"), c.Param("image")); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Image deleted successfully"})
}

func (s *Server) AccessList(c *gin.Context, user *models.User) {
	list, err := s.Gallery.ListAccess(c.Request.Context(), c.Param("album"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) AccessGrant(c *gin.Context, user *models.User) {
	req := AccessGrantRequest{}
	if !s.bind(c, &req) {
		return
	}
	view, err := s.Gallery.GrantAccess(c.Request.Context(), c.Param("album"), req.UserID)
	if err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, AccessResponse{Success: true, Access: view})
}

func (s *Server) AccessRevoke(c *gin.Context, user *models.User) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		s.abortWithError(c, errs.New(errs.KindValidation, "invalid access id"))
		return
	}
	if err = s.Gallery.RevokeAccess(c.Request.Context(), c.Param("album"), id); err != nil {
		s.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "Access removed successfully"})
}
