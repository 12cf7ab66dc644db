package gallery

import (
	"context"
	"strconv"
	"time"

	"photogallery/errs"
	"photogallery/models"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Paging struct {
	Page     int
	PageSize int
}

// ParsePaging reads page and pageSize query values. Missing or non numeric
// values fall back to page 1 and defaultSize; the size is capped at maxSize.
func ParsePaging(page, pageSize string, defaultSize, maxSize int) Paging {
	if defaultSize <= 0 {
		defaultSize = DefaultPageSize
	}
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	p := Paging{Page: 1, PageSize: defaultSize}
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(pageSize); err == nil && n > 0 {
		p.PageSize = min(n, maxSize)
	}
	return p
}

type ImageItem struct {
	ID               string     `json:"id"` // blob pathname
	URL              string     `json:"url"`
	PreviewURL       string     `json:"previewUrl"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	PhotoCreatedAt   *time.Time `json:"photoCreatedAt"`
	ImageID          uint64     `json:"imageId"`
	Filename         string     `json:"filename"`
	OriginalFilename string     `json:"originalFilename"`
	Width            *int       `json:"width"`
	Height           *int       `json:"height"`
}

type ImagePage struct {
	Images     []ImageItem `json:"images"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
	TotalCount int64       `json:"totalCount"`
	HasMore    bool        `json:"hasMore"`
}

func NewImageItem(img *models.Image) ImageItem {
	return ImageItem{
		ID:               img.Pathname,
		URL:              "/images/" + img.Pathname,
		PreviewURL:       "/images/" + img.PreviewPath(),
		UploadedAt:       img.UploadedAt,
		PhotoCreatedAt:   img.PhotoCreatedAt,
		ImageID:          img.ID,
		Filename:         img.Filename,
		OriginalFilename: img.OriginalFilename,
		Width:            img.OriginalWidth,
		Height:           img.OriginalHeight,
	}
}

// ListImages returns one page of the album's images, newest upload first
func (s *Service) ListImages(ctx context.Context, album *models.Album, paging Paging) (ImagePage, error) {
	paging.Page = max(paging.Page, 1)
	if paging.PageSize <= 0 {
		paging.PageSize = DefaultPageSize
	}
	result := ImagePage{Images: []ImageItem{}, Page: paging.Page, PageSize: paging.PageSize}
	tx := s.db.WithContext(ctx).Model(&models.Image{}).Where("album_id = ?", album.ID)
	if err := tx.Count(&result.TotalCount).Error; err != nil {
		return result, errs.Wrap(errs.KindInternal, "", err)
	}
	var rows []models.Image
	err := s.db.WithContext(ctx).Where("album_id = ?", album.ID).
		Order("uploaded_at DESC").Order("id DESC").
		Offset((paging.Page - 1) * paging.PageSize).
		Limit(paging.PageSize).
		Find(&rows).Error
	if err != nil {
		return result, errs.Wrap(errs.KindInternal, "", err)
	}
	for i := range rows {
		result.Images = append(result.Images, NewImageItem(&rows[i]))
	}
	result.TotalPages = int((result.TotalCount + int64(paging.PageSize) - 1) / int64(paging.PageSize))
	result.HasMore = paging.Page < result.TotalPages
	return result, nil
}
