package models

import (
	"strings"
	"time"
	"unicode"
)

type Album struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(300);not null" json:"title"`
	Pathname    string    `gorm:"type:varchar(300);uniqueIndex:uniq_album_pathname;not null" json:"pathname"`
	DateCreated time.Time `gorm:"not null" json:"dateCreated"`
	// No gorm default here: a default would turn an explicit false into true on insert
	IsPublic bool `gorm:"not null" json:"isPublic"`
}

// Prefix is the blob key prefix under which the album's images are stored
func (a *Album) Prefix() string {
	return "albums/" + a.Pathname
}

func (a *Album) PreviewPrefix() string {
	return a.Prefix() + "/previews"
}

// SanitizePathname turns an album title into its URL-safe identifier:
// lower case, whitespace runs become '-', everything outside [a-z0-9-] is
// dropped and repeated dashes are collapsed. Applying it twice changes nothing.
func SanitizePathname(title string) string {
	var b strings.Builder
	lastDash := true // suppresses leading dashes
	for _, c := range strings.ToLower(title) {
		switch {
		case unicode.IsSpace(c) || c == '-':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			b.WriteRune(c)
			lastDash = false
		}
	}
	return strings.TrimRight(b.String(), "-")
}
