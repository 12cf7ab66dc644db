package gallery

import (
	"context"
	"strings"
	"time"

	"photogallery/errs"
	"photogallery/models"
	"photogallery/storage"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const placeholderName = ".placeholder"

type AlbumView struct {
	ID          string    `json:"id"` // pathname
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	DateCreated time.Time `json:"dateCreated"`
	IsPublic    bool      `json:"isPublic"`
}

func NewAlbumView(a *models.Album) AlbumView {
	return AlbumView{
		ID:          a.Pathname,
		Name:        a.Title,
		Path:        a.Prefix(),
		DateCreated: a.DateCreated,
		IsPublic:    a.IsPublic,
	}
}

// CreateAlbum derives the pathname from the title, provisions the album's
// marker blob and inserts the row. isPublic nil means public.
func (s *Service) CreateAlbum(ctx context.Context, title string, isPublic *bool) (*models.Album, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errs.New(errs.KindValidation, "album title is required")
	}
	pathname := models.SanitizePathname(title)
	if pathname == "" {
		return nil, errs.New(errs.KindValidation, "album title must contain letters or digits")
	}
	if exists, err := s.albumExists(ctx, pathname); err != nil {
		return nil, err
	} else if exists {
		return nil, errs.New(errs.KindConflict, "album already exists")
	}

	album := &models.Album{
		Title:       title,
		Pathname:    pathname,
		DateCreated: s.now().UTC(),
		IsPublic:    isPublic == nil || *isPublic,
	}
	if err := s.store.Put(ctx, album.Prefix()+"/"+placeholderName, []byte{}, "application/octet-stream"); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(album).Error; err != nil {
		// lost a race with a concurrent create of the same pathname
		if exists, _ := s.albumExists(ctx, pathname); exists {
			return nil, errs.New(errs.KindConflict, "album already exists")
		}
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	s.logger.InfoContext(ctx, "album created", "album", pathname, "public", album.IsPublic)
	return album, nil
}

func (s *Service) albumExists(ctx context.Context, pathname string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Album{}).Where("pathname = ?", pathname).Count(&count).Error; err != nil {
		return false, errs.Wrap(errs.KindInternal, "", err)
	}
	return count > 0, nil
}

type AlbumUpdate struct {
	Title    *string `json:"title"`
	IsPublic *bool   `json:"isPublic"`
}

// UpdateAlbum changes title and visibility. The pathname never changes.
func (s *Service) UpdateAlbum(ctx context.Context, pathname string, update AlbumUpdate) (*models.Album, error) {
	album, err := s.Album(ctx, pathname)
	if err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return nil, errs.New(errs.KindValidation, "album title is required")
		}
		changes["title"] = title
		album.Title = title
	}
	if update.IsPublic != nil {
		changes["is_public"] = *update.IsPublic
		album.IsPublic = *update.IsPublic
	}
	if len(changes) == 0 {
		return album, nil
	}
	if err = s.db.WithContext(ctx).Model(album).Updates(changes).Error; err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return album, nil
}

// ListAlbums returns the albums the requester may see: everything for
// admins, public albums plus granted ones for everybody else
func (s *Service) ListAlbums(ctx context.Context, requester *models.User) ([]models.Album, error) {
	tx := s.db.WithContext(ctx).Order("date_created DESC").Order("id DESC")
	switch {
	case requester.IsAdmin():
	case requester == nil || requester.ID == 0:
		tx = tx.Where("is_public = ?", true)
	default:
		ids, err := s.grants.AlbumIDsForUser(ctx, requester.ID)
		if err != nil {
			return nil, errs.Wrap(errs.KindInternal, "", err)
		}
		if len(ids) > 0 {
			tx = tx.Where("is_public = ? OR id IN ?", true, ids)
		} else {
			tx = tx.Where("is_public = ?", true)
		}
	}
	albums := []models.Album{}
	if err := tx.Find(&albums).Error; err != nil {
		return nil, errs.Wrap(errs.KindInternal, "", err)
	}
	return albums, nil
}

// DeleteAlbum removes every blob under the album prefix and its cached
// derivatives, then the image rows, grants and the album row. Blob deletes
// run in parallel and failures are logged without stopping the others.
func (s *Service) DeleteAlbum(ctx context.Context, pathname string) error {
	album, err := s.Album(ctx, pathname)
	if err != nil {
		return err
	}
	prefix := album.Prefix() + "/"
	listing, err := s.store.List(ctx, storage.ListOptions{Prefix: prefix})
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, blob := range listing.Blobs {
		blob := blob
		g.Go(func() error {
			if err := s.store.Delete(gctx, blob.Pathname); err != nil {
				s.logger.WarnContext(gctx, "blob not deleted", "path", blob.Pathname, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if s.cache != nil {
		if err := s.cache.InvalidatePrefix(ctx, prefix); err != nil {
			s.logger.WarnContext(ctx, "derivatives not deleted", "album", pathname, "error", err)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("album_id = ?", album.ID).Delete(&models.Image{}).Error; err != nil {
			return err
		}
		if err := tx.Where("album_id = ?", album.ID).Delete(&models.AlbumAccess{}).Error; err != nil {
			return err
		}
		return tx.Delete(album).Error
	})
	if err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	s.logger.InfoContext(ctx, "album deleted", "album", pathname, "blobs", len(listing.Blobs))
	return nil
}
