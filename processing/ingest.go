// Package processing ingests uploaded images into an album.
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"photogallery/errs"
	"photogallery/models"
	"photogallery/storage"
	"photogallery/transform"

	"gorm.io/gorm"
)

const timestampLayout = "20060102_150405_"

type Upload struct {
	Filename    string
	ContentType string // as declared by the client, may be empty
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Result is the per-file outcome reported to the client
type Result struct {
	Filename        string     `json:"filename"`
	TimestampedName string     `json:"timestampedName,omitempty"`
	Path            string     `json:"path,omitempty"`
	Success         bool       `json:"success"`
	ID              uint64     `json:"id,omitempty"`
	PhotoCreatedAt  *time.Time `json:"photoCreatedAt"`
	Width           *int       `json:"width"`
	Height          *int       `json:"height"`
	Error           string     `json:"error,omitempty"`
}

type Options struct {
	MaxSize     int64
	MaxEdge     int
	PreviewEdge int
	Format      string
	Quality     int
}

type Ingester struct {
	db          *gorm.DB
	store       storage.BlobStore
	transformer transform.Transformer
	opts        Options
	logger      *slog.Logger
	now         func() time.Time
}

func NewIngester(db *gorm.DB, store storage.BlobStore, transformer transform.Transformer, opts Options, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if transformer == nil {
		transformer = transform.Identity{}
	}
	return &Ingester{
		db:          db,
		store:       store,
		transformer: transformer,
		opts:        opts,
		logger:      logger.With("component", "ingest"),
		now:         time.Now,
	}
}

// Ingest processes the uploads one after another. A failing file is
// reported in its Result and does not stop the rest of the batch.
func (in *Ingester) Ingest(ctx context.Context, album *models.Album, uploads []Upload) []Result {
	results := make([]Result, 0, len(uploads))
	for _, up := range uploads {
		result, err := in.ingestOne(ctx, album, up)
		if err != nil {
			in.logger.WarnContext(ctx, "ingest failed", "album", album.Pathname, "file", up.Filename, "error", err)
			result.Success = false
			result.Error = errs.Message(err)
		}
		results = append(results, result)
	}
	return results
}

func (in *Ingester) ingestOne(ctx context.Context, album *models.Album, up Upload) (Result, error) {
	result := Result{Filename: up.Filename}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	data, contentType, err := in.read(up)
	if err != nil {
		return result, err
	}

	meta := ReadMetadata(data)

	full, preview := data, data
	fullType, previewType := contentType, contentType
	filename := models.CleanFilename(up.Filename)
	if transform.Enabled(in.transformer) {
		r, err := in.transformer.Transform(ctx, data, transform.Bound(in.opts.MaxEdge, in.opts.Format, in.opts.Quality))
		if err != nil {
			return result, asTransformError(err)
		}
		full, fullType = r.Data, r.ContentType
		r, err = in.transformer.Transform(ctx, full, transform.Bound(in.opts.PreviewEdge, in.opts.Format, in.opts.Quality))
		if err != nil {
			return result, asTransformError(err)
		}
		preview, previewType = r.Data, r.ContentType
		filename = withExtension(filename, fullType)
	}

	row := models.Image{
		AlbumID:          album.ID,
		OriginalFilename: up.Filename,
		UploadedAt:       in.now().UTC(),
		PhotoCreatedAt:   meta.CapturedAt,
		OriginalWidth:    meta.Width,
		OriginalHeight:   meta.Height,
	}
	if err = in.reserve(ctx, album, filename, &row); err != nil {
		return result, err
	}
	result.TimestampedName = row.Filename
	result.Path = row.Pathname
	previewPath := album.PreviewPrefix() + "/" + row.Filename

	if err = in.store.Put(ctx, previewPath, preview, previewType); err != nil {
		in.release(ctx, &row, previewPath)
		return result, err
	}
	if err = in.store.Put(ctx, row.Pathname, full, fullType); err != nil {
		in.release(ctx, &row, previewPath, row.Pathname)
		return result, err
	}

	result.Success = true
	result.ID = row.ID
	result.PhotoCreatedAt = meta.CapturedAt
	result.Width = meta.Width
	result.Height = meta.Height
	return result, nil
}

// read validates the upload and returns its bytes and content type
func (in *Ingester) read(up Upload) ([]byte, string, error) {
	if up.Size <= 0 {
		return nil, "", errs.New(errs.KindValidation, "file is empty")
	}
	if up.Size > in.opts.MaxSize {
		return nil, "", errs.New(errs.KindValidation, "file is larger than "+formatSize(in.opts.MaxSize))
	}
	f, err := up.Open()
	if err != nil {
		return nil, "", errs.Wrap(errs.KindValidation, "cannot read file", err)
	}
	defer f.Close()
	// The declared size comes from the client, check what is actually there
	data, err := io.ReadAll(io.LimitReader(f, in.opts.MaxSize+1))
	if err != nil {
		return nil, "", errs.Wrap(errs.KindValidation, "cannot read file", err)
	}
	if len(data) == 0 {
		return nil, "", errs.New(errs.KindValidation, "file is empty")
	}
	if int64(len(data)) > in.opts.MaxSize {
		return nil, "", errs.New(errs.KindValidation, "file is larger than "+formatSize(in.opts.MaxSize))
	}
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, "", errs.New(errs.KindValidation, "file is not an image")
	}
	return data, contentType, nil
}

// maxNameAttempts bounds the counter appended to a name taken in the same second
const maxNameAttempts = 1000

// reserve claims "YYYYMMDD_HHMMSS_<name>" for row by inserting it, adding a
// counter when the name is already taken in this album. The unique pathname
// index settles concurrent uploads of the same file.
func (in *Ingester) reserve(ctx context.Context, album *models.Album, filename string, row *models.Image) error {
	prefix := in.now().UTC().Format(timestampLayout)
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	name := prefix + filename
	for i := 1; i <= maxNameAttempts; i++ {
		taken, err := in.taken(ctx, album.Prefix()+"/"+name)
		if err != nil {
			return err
		}
		if !taken {
			row.ID = 0
			row.Filename = name
			row.Pathname = album.Prefix() + "/" + name
			err = in.db.WithContext(ctx).Create(row).Error
			if err == nil {
				return nil
			}
			// lost the race for this name, or a real failure
			if taken, terr := in.taken(ctx, row.Pathname); terr != nil || !taken {
				return errs.Wrap(errs.KindInternal, "", err)
			}
		}
		name = fmt.Sprintf("%s%s_%d%s", prefix, base, i, ext)
	}
	return errs.New(errs.KindConflict, "too many files named "+filename+" uploaded at once")
}

func (in *Ingester) taken(ctx context.Context, pathname string) (bool, error) {
	var count int64
	err := in.db.WithContext(ctx).Model(&models.Image{}).Where("pathname = ?", pathname).Count(&count).Error
	if err != nil {
		return false, errs.Wrap(errs.KindInternal, "", err)
	}
	return count > 0, nil
}

// release undoes a reservation whose blobs could not all be written
func (in *Ingester) release(ctx context.Context, row *models.Image, blobs ...string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range blobs {
		if err := in.store.Delete(ctx, key); err != nil {
			in.logger.ErrorContext(ctx, "blob not removed after failed upload", "path", key, "error", err)
		}
	}
	if err := in.db.WithContext(ctx).Delete(&models.Image{}, row.ID).Error; err != nil {
		in.logger.ErrorContext(ctx, "image row not removed after failed upload", "path", row.Pathname, "error", err)
	}
}

// extensions lists the file extensions accepted for each stored content type, preferred first
var extensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/bmp":  {".bmp"},
	"image/tiff": {".tiff", ".tif"},
	"image/webp": {".webp"},
}

// withExtension makes the extension of name match contentType
func withExtension(name, contentType string) string {
	exts, ok := extensions[contentType]
	if !ok {
		return name
	}
	ext := path.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return name
		}
	}
	return strings.TrimSuffix(name, ext) + exts[0]
}

func formatSize(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%d MiB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}

func asTransformError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errs.KindOf(err) == errs.KindTransformFailed {
		return err
	}
	return errs.Wrap(errs.KindTransformFailed, "image transform failed", err)
}
