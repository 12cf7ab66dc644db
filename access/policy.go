// Package access decides who may read an album and the images in it.
package access

import (
	"context"
	"errors"
	"strings"

	"photogallery/errs"
	"photogallery/models"

	"gorm.io/gorm"
)

type Decision uint8

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Unauthenticated:
		return "authentication required"
	}
	return "forbidden"
}

// Err converts a denial into the matching errs value, nil for Allow
func (d Decision) Err() error {
	switch d {
	case Allow:
		return nil
	case Unauthenticated:
		return errs.New(errs.KindUnauthenticated, "authentication required")
	}
	return errs.New(errs.KindForbidden, "forbidden")
}

type GrantChecker interface {
	HasGrant(ctx context.Context, albumID, userID uint64) (bool, error)
}

// Policy is evaluated fresh on every call, decisions are never cached
type Policy struct {
	grants GrantChecker
	db     *gorm.DB
}

func NewPolicy(db *gorm.DB, grants GrantChecker) *Policy {
	return &Policy{db: db, grants: grants}
}

// CanAccessAlbum applies the rules in order, first match wins:
// public albums, anonymous requesters, admins, explicit grants.
func (p *Policy) CanAccessAlbum(ctx context.Context, album *models.Album, requester *models.User) (Decision, error) {
	if album.IsPublic {
		return Allow, nil
	}
	if requester == nil || requester.ID == 0 {
		return Unauthenticated, nil
	}
	if requester.IsAdmin() {
		return Allow, nil
	}
	ok, err := p.grants.HasGrant(ctx, album.ID, requester.ID)
	if err != nil {
		return Forbidden, errs.Wrap(errs.KindInternal, "", err)
	}
	if ok {
		return Allow, nil
	}
	return Forbidden, nil
}

// CanAccessImage defers to the owning album
func (p *Policy) CanAccessImage(ctx context.Context, image *models.Image, requester *models.User) (Decision, error) {
	var album models.Album
	err := p.db.WithContext(ctx).First(&album, image.AlbumID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Forbidden, errs.New(errs.KindNotFound, "album not found")
	} else if err != nil {
		return Forbidden, errs.Wrap(errs.KindInternal, "", err)
	}
	return p.CanAccessAlbum(ctx, &album, requester)
}

// CanAccessPath checks a blob key. Keys under albums/{pathname}/, and cached
// derivatives of them, follow the album's decision; an album prefix with no
// album row is NotFound. Any other key is not album content and is allowed.
func (p *Policy) CanAccessPath(ctx context.Context, key string, requester *models.User) (Decision, error) {
	pathname, ok := models.AlbumPathnameOf(key)
	if !ok {
		if i := strings.Index(key, "/albums/"); i >= 0 {
			pathname, ok = models.AlbumPathnameOf(key[i+1:])
		}
	}
	if !ok {
		return Allow, nil
	}
	var album models.Album
	err := p.db.WithContext(ctx).Where("pathname = ?", pathname).First(&album).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Forbidden, errs.New(errs.KindNotFound, "album not found")
	} else if err != nil {
		return Forbidden, errs.Wrap(errs.KindInternal, "", err)
	}
	return p.CanAccessAlbum(ctx, &album, requester)
}
