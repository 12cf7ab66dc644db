// Package gallery implements album, image and grant management and the
// paginated image listing.
package gallery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"photogallery/derivative"
	"photogallery/errs"
	"photogallery/models"
	"photogallery/storage"

	"gorm.io/gorm"
)

const deleteConcurrency = 8

type Service struct {
	db     *gorm.DB
	store  storage.BlobStore
	cache  *derivative.Cache
	grants *models.Grants
	logger *slog.Logger
	now    func() time.Time
}

func NewService(db *gorm.DB, store storage.BlobStore, cache *derivative.Cache, grants *models.Grants, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:     db,
		store:  store,
		cache:  cache,
		grants: grants,
		logger: logger.With("component", "gallery"),
		now:    time.Now,
	}
}

// Album loads an album by its pathname
func (s *Service) Album(ctx context.Context, pathname string) (*models.Album, error) {
	var album models.Album
	err := s.db.WithContext(ctx).Where("pathname = ?", pathname).First(&album).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "album not found")
	} else if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return &album, nil
}

func (s *Service) user(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindNotFound, "user not found")
	} else if err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return &user, nil
}
