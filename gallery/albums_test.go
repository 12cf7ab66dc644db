package gallery

import (
	"context"
	"testing"
	"time"

	"photogallery/errs"
	"photogallery/models"
	"photogallery/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAlbum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	album, err := f.service.CreateAlbum(ctx, "  My Trip!! 2024 ", nil)
	require.NoError(t, err)
	assert.Equal(t, "my-trip-2024", album.Pathname)
	assert.Equal(t, "My Trip!! 2024", album.Title)
	assert.True(t, album.IsPublic)

	_, err = f.store.Get(ctx, "albums/my-trip-2024/.placeholder")
	assert.NoError(t, err, "marker blob provisioned")

	_, err = f.service.CreateAlbum(ctx, "my trip 2024", nil)
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	private, err := f.service.CreateAlbum(ctx, "Family", boolPtr(false))
	require.NoError(t, err)
	assert.False(t, private.IsPublic)

	for _, title := range []string{"", "   ", "!!!"} {
		_, err = f.service.CreateAlbum(ctx, title, nil)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), title)
	}
}

func TestUpdateAlbum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.CreateAlbum(ctx, "Summer", nil)
	require.NoError(t, err)

	title := "Summer 2024"
	album, err := f.service.UpdateAlbum(ctx, "summer", AlbumUpdate{Title: &title, IsPublic: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "summer", album.Pathname, "pathname is immutable")

	loaded, err := f.service.Album(ctx, "summer")
	require.NoError(t, err)
	assert.Equal(t, "Summer 2024", loaded.Title)
	assert.False(t, loaded.IsPublic)

	empty := " "
	_, err = f.service.UpdateAlbum(ctx, "summer", AlbumUpdate{Title: &empty})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	_, err = f.service.UpdateAlbum(ctx, "winter", AlbumUpdate{Title: &title})
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestListAlbums(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.service.CreateAlbum(ctx, "Public", nil)
	require.NoError(t, err)
	_, err = f.service.CreateAlbum(ctx, "Private One", boolPtr(false))
	require.NoError(t, err)
	_, err = f.service.CreateAlbum(ctx, "Private Two", boolPtr(false))
	require.NoError(t, err)
	admin := f.user(t, "admin@example.com", models.RoleAdmin)
	granted := f.user(t, "granted@example.com", models.RoleUser)
	other := f.user(t, "other@example.com", models.RoleUser)
	_, err = f.service.GrantAccess(ctx, "private-one", granted.ID)
	require.NoError(t, err)

	tests := []struct {
		name      string
		requester *models.User
		want      []string
	}{
		{"anonymous", nil, []string{"public"}},
		{"user without grants", other, []string{"public"}},
		{"user with grant", granted, []string{"public", "private-one"}},
		{"admin", admin, []string{"public", "private-one", "private-two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			albums, err := f.service.ListAlbums(ctx, tt.requester)
			require.NoError(t, err)
			var got []string
			for _, a := range albums {
				got = append(got, a.Pathname)
			}
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestDeleteAlbum(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	album, err := f.service.CreateAlbum(ctx, "Summer", boolPtr(false))
	require.NoError(t, err)
	other, err := f.service.CreateAlbum(ctx, "Summertime", nil)
	require.NoError(t, err)
	user := f.user(t, "u@example.com", models.RoleUser)
	_, err = f.service.GrantAccess(ctx, "summer", user.ID)
	require.NoError(t, err)

	for i, name := range []string{"a.jpg", "b.jpg"} {
		img := f.image(t, album, name, time.Now().Add(time.Duration(i)*time.Second))
		require.NoError(t, f.store.Put(ctx, img.Pathname, []byte("x"), "image/jpeg"))
		require.NoError(t, f.store.Put(ctx, img.PreviewPath(), []byte("x"), "image/jpeg"))
	}
	require.NoError(t, f.store.Put(ctx, "resized/w=100/albums/summer/a.jpg", []byte("x"), "image/jpeg"))
	kept := f.image(t, other, "c.jpg", time.Now())
	require.NoError(t, f.store.Put(ctx, kept.Pathname, []byte("x"), "image/jpeg"))

	require.NoError(t, f.service.DeleteAlbum(ctx, "summer"))

	listing, err := f.store.List(ctx, storage.ListOptions{Prefix: "albums/summer/"})
	require.NoError(t, err)
	assert.Empty(t, listing.Blobs)
	listing, err = f.store.List(ctx, storage.ListOptions{Prefix: "resized/"})
	require.NoError(t, err)
	assert.Empty(t, listing.Blobs)

	var count int64
	require.NoError(t, f.db.Model(&models.Image{}).Where("album_id = ?", album.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.db.Model(&models.AlbumAccess{}).Count(&count).Error)
	assert.Zero(t, count)
	_, err = f.service.Album(ctx, "summer")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))

	_, err = f.store.Get(ctx, kept.Pathname)
	assert.NoError(t, err, "a sibling album sharing the name prefix is untouched")

	assert.Equal(t, errs.KindNotFound, errs.KindOf(f.service.DeleteAlbum(ctx, "summer")))
}
