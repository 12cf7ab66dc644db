package gallery

import (
	"context"
	"strings"

	"photogallery/errs"
	"photogallery/models"
)

// DeleteImage removes the image blob, then best effort its preview and cached
// derivatives, then the row. imagePath is the full "albums/{album}/{file}" key.
func (s *Service) DeleteImage(ctx context.Context, albumPathname, imagePath string) error {
	album, err := s.Album(ctx, albumPathname)
	if err != nil {
		return err
	}
	imagePath = strings.TrimPrefix(imagePath, "/")
	name, ok := strings.CutPrefix(imagePath, album.Prefix()+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return errs.New(errs.KindValidation, "image does not belong to this album")
	}

	if err = s.store.Delete(ctx, imagePath); err != nil {
		return err
	}
	previewPath := models.PreviewPathFor(imagePath)
	if err = s.store.Delete(ctx, previewPath); err != nil {
		s.logger.WarnContext(ctx, "could not delete preview image", "path", previewPath, "error", err)
	}
	if s.cache != nil {
		if err = s.cache.Invalidate(ctx, imagePath); err != nil {
			s.logger.WarnContext(ctx, "could not delete derivatives", "path", imagePath, "error", err)
		}
	}
	if err = s.db.WithContext(ctx).Where("pathname = ?", imagePath).Delete(&models.Image{}).Error; err != nil {
		return errs.Wrap(errs.KindInternal, "", err)
	}
	s.logger.InfoContext(ctx, "image deleted", "path", imagePath)
	return nil
}
