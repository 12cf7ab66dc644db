package gallery

import (
	"context"
	"errors"
	"time"

	"photogallery/errs"
	"photogallery/models"

	"gorm.io/gorm"
)

type AccessView struct {
	ID          uint64        `json:"id"`
	AlbumID     uint64        `json:"albumId"`
	UserID      uint64        `json:"userId"`
	DateGranted time.Time     `json:"dateGranted"`
	User        models.Public `json:"user"`
}

type AccessEntry struct {
	AccessID    uint64    `json:"accessId"`
	UserID      uint64    `json:"userId"`
	DateGranted time.Time `json:"dateGranted"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
}

type AccessList struct {
	Album AlbumView     `json:"album"`
	Users []AccessEntry `json:"users"`
}

// GrantAccess gives the user read access to a private album. Granting twice is a Conflict.
func (s *Service) GrantAccess(ctx context.Context, pathname string, userID uint64) (AccessView, error) {
	album, err := s.Album(ctx, pathname)
	if err != nil {
		return AccessView{}, err
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return AccessView{}, err
	}
	exists, err := s.grants.HasGrant(ctx, album.ID, user.ID)
	if err != nil {
		return AccessView{}, errs.Wrap(errs.KindInternal, "", err)
	}
	if exists {
		return AccessView{}, errs.New(errs.KindConflict, "user already has access to this album")
	}
	grant, err := s.grants.Create(ctx, album.ID, user.ID, s.now().UTC())
	if err != nil {
		// the unique index catches a concurrent grant of the same pair
		if exists, _ := s.grants.HasGrant(ctx, album.ID, user.ID); exists {
			return AccessView{}, errs.New(errs.KindConflict, "user already has access to this album")
		}
		return AccessView{}, errs.Wrap(errs.KindInternal, "", err)
	}
	s.logger.InfoContext(ctx, "access granted", "album", pathname, "user", user.ID)
	return AccessView{
		ID:          grant.ID,
		AlbumID:     grant.AlbumID,
		UserID:      grant.UserID,
		DateGranted: grant.DateGranted,
		User:        user.Public(),
	}, nil
}

func (s *Service) ListAccess(ctx context.Context, pathname string) (AccessList, error) {
	album, err := s.Album(ctx, pathname)
	if err != nil {
		return AccessList{}, err
	}
	grants, err := s.grants.ListForAlbum(ctx, album.ID)
	if err != nil {
		return AccessList{}, errs.Wrap(errs.KindInternal, "", err)
	}
	result := AccessList{Album: NewAlbumView(album), Users: []AccessEntry{}}
	for _, g := range grants {
		result.Users = append(result.Users, AccessEntry{
			AccessID:    g.ID,
			UserID:      g.UserID,
			DateGranted: g.DateGranted,
			Email:       g.User.Email,
			Name:        g.User.Name,
		})
	}
	return result, nil
}

// RevokeAccess deletes a grant by id; the grant must belong to the album
func (s *Service) RevokeAccess(ctx context.Context, pathname string, accessID uint64) error {
	album, err := s.Album(ctx, pathname)
	if err != nil {
		return err
	}
	grant, err := s.grants.Get(ctx, accessID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.New(errs.KindNotFound, "access not found")
	} else if err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	if grant.AlbumID != album.ID {
		return errs.New(errs.KindValidation, "access does not belong to this album")
	}
	if err = s.grants.Delete(ctx, grant.ID); err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	s.logger.InfoContext(ctx, "access revoked", "album", pathname, "user", grant.UserID)
	return nil
}
