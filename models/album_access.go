package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AlbumAccess grants a user read access to a private album
type AlbumAccess struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	AlbumID     uint64    `gorm:"not null;uniqueIndex:uniq_album_user,priority:1" json:"albumId"`
	Album       Album     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID      uint64    `gorm:"not null;uniqueIndex:uniq_album_user,priority:2;index" json:"userId"`
	User        User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	DateGranted time.Time `gorm:"not null" json:"dateGranted"`
}

func (AlbumAccess) TableName() string {
	return "album_access"
}

// Grants reads and writes AlbumAccess rows
type Grants struct {
	DB *gorm.DB
}

func (g *Grants) HasGrant(ctx context.Context, albumID, userID uint64) (bool, error) {
	var count int64
	err := g.DB.WithContext(ctx).Model(&AlbumAccess{}).
		Where("album_id = ? AND user_id = ?", albumID, userID).
		Count(&count).Error
	return count > 0, err
}

// Find returns the grant for the pair or gorm.ErrRecordNotFound
func (g *Grants) Find(ctx context.Context, albumID, userID uint64) (grant AlbumAccess, err error) {
	err = g.DB.WithContext(ctx).Where("album_id = ? AND user_id = ?", albumID, userID).First(&grant).Error
	return
}

func (g *Grants) Create(ctx context.Context, albumID, userID uint64, now time.Time) (AlbumAccess, error) {
	grant := AlbumAccess{AlbumID: albumID, UserID: userID, DateGranted: now}
	return grant, g.DB.WithContext(ctx).Create(&grant).Error
}

// ListForAlbum returns the album's grants with their users loaded
func (g *Grants) ListForAlbum(ctx context.Context, albumID uint64) (grants []AlbumAccess, err error) {
	err = g.DB.WithContext(ctx).Preload("User").
		Where("album_id = ?", albumID).
		Order("date_granted DESC, id DESC").
		Find(&grants).Error
	return
}

// Get returns the grant with the given id or gorm.ErrRecordNotFound
func (g *Grants) Get(ctx context.Context, id uint64) (grant AlbumAccess, err error) {
	err = g.DB.WithContext(ctx).First(&grant, id).Error
	return
}

func (g *Grants) Delete(ctx context.Context, id uint64) error {
	return g.DB.WithContext(ctx).Delete(&AlbumAccess{}, id).Error
}

// DeleteForAlbum removes every grant of the album
func (g *Grants) DeleteForAlbum(ctx context.Context, albumID uint64) error {
	return g.DB.WithContext(ctx).Where("album_id = ?", albumID).Delete(&AlbumAccess{}).Error
}

// AlbumIDsForUser lists the albums the user was explicitly granted
func (g *Grants) AlbumIDsForUser(ctx context.Context, userID uint64) (ids []uint64, err error) {
	err = g.DB.WithContext(ctx).Model(&AlbumAccess{}).Where("user_id = ?", userID).Pluck("album_id", &ids).Error
	return
}
