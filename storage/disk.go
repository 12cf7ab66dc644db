package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"photogallery/errs"

	cmap "github.com/orcaman/concurrent-map/v2"
)

const tempSuffix = ".tmp-upload"

type DiskStorage struct {
	// BasePath is a directory (usually mount point of a disk) that is writable by the current process
	BasePath string
	dirs     cmap.ConcurrentMap[string, bool]
}

func NewDiskStorage(bucket *Bucket) (*DiskStorage, error) {
	if err := os.MkdirAll(bucket.Path, 0777); err != nil {
		return nil, err
	}
	return &DiskStorage{
		BasePath: bucket.Path,
		dirs:     cmap.New[bool](),
	}, nil
}

func (s *DiskStorage) createDir(dir string) error {
	if s.dirs.Has(dir) {
		return nil
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		return err
	}
	s.dirs.Set(dir, true)
	return nil
}

func (s *DiskStorage) getFullPath(pathname string) string {
	return filepath.Join(s.BasePath, filepath.FromSlash(pathname))
}

// Put writes to a temp file and renames it, so readers never see partial objects
func (s *DiskStorage) Put(ctx context.Context, pathname string, data []byte, contentType string) error {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return err
	}
	fileName := s.getFullPath(pathname)
	if err = s.createDir(filepath.Dir(fileName)); err != nil {
		return errs.Wrap(errs.KindStorageFailed, "storage write failed", err)
	}
	file, err := os.CreateTemp(filepath.Dir(fileName), filepath.Base(fileName)+".*"+tempSuffix)
	if err != nil {
		return errs.Wrap(errs.KindStorageFailed, "storage write failed", err)
	}
	_, err = file.Write(data)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(file.Name(), fileName)
	}
	if err != nil {
		os.Remove(file.Name())
		return errs.Wrap(errs.KindStorageFailed, "storage write failed", err)
	}
	return nil
}

func (s *DiskStorage) Get(ctx context.Context, pathname string) (*Blob, error) {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return nil, err
	}
	fileName := s.getFullPath(pathname)
	fi, err := os.Stat(fileName)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && fi.IsDir()) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errs.Wrap(errs.KindStorageFailed, "storage read failed", err)
	}
	return &Blob{
		Pathname:    pathname,
		ContentType: DetectContentType(pathname, data),
		Size:        int64(len(data)),
		UploadedAt:  fi.ModTime(),
		Data:        data,
	}, nil
}

func (s *DiskStorage) Delete(ctx context.Context, pathname string) error {
	pathname, err := CleanPath(pathname)
	if err != nil {
		return err
	}
	err = os.Remove(s.getFullPath(pathname))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.KindStorageFailed, "storage delete failed", err)
	}
	return nil
}

func (s *DiskStorage) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	// Start from the deepest directory fully covered by the prefix
	root := s.BasePath
	if i := strings.LastIndex(opts.Prefix, "/"); i > 0 {
		dir, err := CleanPath(opts.Prefix[:i])
		if err != nil {
			return ListResult{}, err
		}
		root = s.getFullPath(dir)
	}
	if opts.Folded {
		return s.listFolded(ctx, root, opts.Prefix)
	}
	var blobs []Blob
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(p, tempSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.BasePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, opts.Prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		blobs = append(blobs, Blob{
			Pathname:   key,
			Size:       info.Size(),
			UploadedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return ListResult{}, errs.Wrap(errs.KindStorageFailed, "storage list failed", err)
	}
	return ListResult{Blobs: blobs}, nil
}

// listFolded reads the single directory root, reporting subdirectories as folders
func (s *DiskStorage) listFolded(ctx context.Context, root, prefix string) (ListResult, error) {
	result := ListResult{}
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	} else if err != nil {
		return ListResult{}, errs.Wrap(errs.KindStorageFailed, "storage list failed", err)
	}
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i > 0 {
		dir = prefix[:i+1]
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return ListResult{}, err
		}
		key := dir + entry.Name()
		if entry.IsDir() {
			key += "/"
		}
		if !strings.HasPrefix(key, prefix) || strings.HasSuffix(key, tempSuffix) {
			continue
		}
		if entry.IsDir() {
			result.Folders = append(result.Folders, key)
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return ListResult{}, errs.Wrap(errs.KindStorageFailed, "storage list failed", err)
		}
		result.Blobs = append(result.Blobs, Blob{
			Pathname:   key,
			Size:       info.Size(),
			UploadedAt: info.ModTime(),
		})
	}
	return result, nil
}
