package derivative

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"photogallery/errs"
	"photogallery/storage"
	"photogallery/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const originalPath = "albums/summer/20240101_120000_beach.jpg"

func newTestCache(t *testing.T) (*Cache, *storage.DiskStorage) {
	t.Helper()
	store, err := storage.NewDiskStorage(&storage.Bucket{Path: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), originalPath, []byte("original"), "image/jpeg"))
	return NewCache(store, "", nil), store
}

func countingTransform(calls *int32) TransformFunc {
	return func(ctx context.Context, original *storage.Blob, params map[string]string) (transform.Result, error) {
		atomic.AddInt32(calls, 1)
		return transform.Result{Data: []byte("resized:" + params["width"]), ContentType: "image/jpeg"}, nil
	}
}

func TestCache_GetOrCreateHitsOnSecondCall(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)
	key, err := ParseKey("w=100,h=200")
	require.NoError(t, err)

	var calls int32
	first, err := cache.GetOrCreate(ctx, originalPath, key, countingTransform(&calls))
	require.NoError(t, err)
	assert.False(t, first.Hit)
	assert.Equal(t, []byte("resized:100"), first.Data)
	assert.Equal(t, "resized/h=200,w=100/"+originalPath, first.Path)
	assert.EqualValues(t, 1, calls)

	_, err = store.Get(ctx, first.Path)
	require.NoError(t, err, "derivative must be written to the cache")

	// equivalent parameters in a different order share the entry
	key2, err := ParseKey("h=200,w=100")
	require.NoError(t, err)
	second, err := cache.GetOrCreate(ctx, originalPath, key2, countingTransform(&calls))
	require.NoError(t, err)
	assert.True(t, second.Hit)
	assert.Equal(t, first.Data, second.Data)
	assert.EqualValues(t, 1, calls, "second call must not transform")
}

func TestCache_GetOrCreateErrors(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	key, err := ParseKey("w=100")
	require.NoError(t, err)

	var calls int32
	_, err = cache.GetOrCreate(ctx, "albums/summer/missing.jpg", key, countingTransform(&calls))
	assert.True(t, errors.Is(err, errs.ErrNotFound))
	assert.EqualValues(t, 0, calls)

	failing := func(ctx context.Context, original *storage.Blob, params map[string]string) (transform.Result, error) {
		return transform.Result{}, errors.New("corrupt input")
	}
	_, err = cache.GetOrCreate(ctx, originalPath, key, failing)
	assert.Equal(t, errs.KindTransformFailed, errs.KindOf(err))

	invalid := func(ctx context.Context, original *storage.Blob, params map[string]string) (transform.Result, error) {
		return transform.Result{}, errs.New(errs.KindValidation, "invalid parameter: quality")
	}
	_, err = cache.GetOrCreate(ctx, originalPath, key, invalid)
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestCache_EmptyKeyReturnsOriginal(t *testing.T) {
	cache, _ := newTestCache(t)
	var calls int32
	d, err := cache.GetOrCreate(context.Background(), originalPath, Key{}, countingTransform(&calls))
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), d.Data)
	assert.EqualValues(t, 0, calls)
}

func TestCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)
	var calls int32
	for _, s := range []string{"w=100", "w=200"} {
		key, err := ParseKey(s)
		require.NoError(t, err)
		_, err = cache.GetOrCreate(ctx, originalPath, key, countingTransform(&calls))
		require.NoError(t, err)
	}
	other := "albums/summer/other.jpg"
	require.NoError(t, store.Put(ctx, "resized/w=100/"+other, []byte("x"), "image/jpeg"))

	require.NoError(t, cache.Invalidate(ctx, originalPath))

	listing, err := store.List(ctx, storage.ListOptions{Prefix: "resized/"})
	require.NoError(t, err)
	require.Len(t, listing.Blobs, 1)
	assert.Equal(t, "resized/w=100/"+other, listing.Blobs[0].Pathname)
}

// recordingStore notes the listings and deletes it serves
type recordingStore struct {
	storage.BlobStore
	lists   []storage.ListOptions
	listed  []storage.ListResult
	deleted []string
}

func (s *recordingStore) List(ctx context.Context, opts storage.ListOptions) (storage.ListResult, error) {
	result, err := s.BlobStore.List(ctx, opts)
	s.lists = append(s.lists, opts)
	s.listed = append(s.listed, result)
	return result, err
}

func (s *recordingStore) Delete(ctx context.Context, pathname string) error {
	s.deleted = append(s.deleted, pathname)
	return s.BlobStore.Delete(ctx, pathname)
}

func TestCache_InvalidateListsOnlyKeyFolders(t *testing.T) {
	ctx := context.Background()
	_, disk := newTestCache(t)
	keys := []string{"w=100", "w=200", "fit=cover,w=50"}
	for _, key := range keys {
		require.NoError(t, disk.Put(ctx, "resized/"+key+"/"+originalPath, []byte("x"), "image/jpeg"))
		for i := 0; i < 20; i++ {
			other := fmt.Sprintf("resized/%s/albums/album%d/deep/img%d.jpg", key, i, i)
			require.NoError(t, disk.Put(ctx, other, []byte("x"), "image/jpeg"))
		}
	}
	store := &recordingStore{BlobStore: disk}
	cache := NewCache(store, "resized", nil)

	require.NoError(t, cache.Invalidate(ctx, originalPath))

	require.Len(t, store.lists, 1)
	assert.Equal(t, storage.ListOptions{Prefix: "resized/", Folded: true}, store.lists[0])
	assert.Empty(t, store.listed[0].Blobs)
	assert.ElementsMatch(t, []string{"resized/w=100/", "resized/w=200/", "resized/fit=cover,w=50/"}, store.listed[0].Folders)
	assert.Len(t, store.deleted, len(keys))
	for _, key := range keys {
		_, err := disk.Get(ctx, "resized/"+key+"/"+originalPath)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = disk.Get(ctx, "resized/"+key+"/albums/album3/deep/img3.jpg")
		assert.NoError(t, err)
	}
}

func TestCache_InvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	cache, store := newTestCache(t)
	for _, p := range []string{
		"resized/w=100/albums/summer/a.jpg",
		"resized/w=200/albums/summer/b.jpg",
		"resized/w=100/albums/winter/c.jpg",
	} {
		require.NoError(t, store.Put(ctx, p, []byte("x"), "image/jpeg"))
	}
	require.NoError(t, cache.InvalidatePrefix(ctx, "albums/summer/"))

	listing, err := store.List(ctx, storage.ListOptions{Prefix: "resized/"})
	require.NoError(t, err)
	require.Len(t, listing.Blobs, 1)
	assert.Equal(t, "resized/w=100/albums/winter/c.jpg", listing.Blobs[0].Pathname)
}
