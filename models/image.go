package models

import (
	"path"
	"strings"
	"time"
)

type Image struct {
	ID               uint64     `gorm:"primaryKey" json:"id"`
	AlbumID          uint64     `gorm:"not null;index:album_image_uploaded,priority:1" json:"albumId"`
	Album            Album      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Pathname         string     `gorm:"type:varchar(600);uniqueIndex:uniq_image_pathname;not null" json:"pathname"`
	Filename         string     `gorm:"type:varchar(300);not null" json:"filename"`
	OriginalFilename string     `gorm:"type:varchar(300);not null" json:"originalFilename"`
	UploadedAt       time.Time  `gorm:"not null;index:album_image_uploaded,priority:2" json:"uploadedAt"`
	PhotoCreatedAt   *time.Time `json:"photoCreatedAt"`
	OriginalWidth    *int       `json:"originalWidth"`
	OriginalHeight   *int       `json:"originalHeight"`
}

// PreviewPath returns the key of the image's preview, a sibling "previews"
// directory next to the image itself
func (i *Image) PreviewPath() string {
	return PreviewPathFor(i.Pathname)
}

func PreviewPathFor(pathname string) string {
	dir, file := path.Split(pathname)
	return dir + "previews/" + file
}

// CleanFilename restricts a client supplied file name to a safe character set
func CleanFilename(original string) string {
	original = path.Base(strings.ReplaceAll(original, "\\", "/"))
	if original == "." || original == "/" {
		return "image"
	}
	var name strings.Builder
	for i, c := range original {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
			(c == '.' && i > 0) || (c == '-') || (c == '_') {

			name.WriteRune(c)
		} else {
			// Replace all other characters with '_' (underscore)
			name.WriteString("_")
		}
	}
	return name.String()
}

// AlbumPathnameOf extracts the album pathname from an "albums/{album}/..." key
func AlbumPathnameOf(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, "albums/")
	if !ok {
		return "", false
	}
	album, _, ok := strings.Cut(rest, "/")
	if !ok || album == "" {
		return "", false
	}
	return album, true
}
