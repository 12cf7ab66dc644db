package processing

import (
	"bytes"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/zsefvlol/timezonemapper"

	// DecodeConfig support for the accepted formats
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// Metadata is extracted best effort, every field may be nil
type Metadata struct {
	CapturedAt *time.Time
	Width      *int
	Height     *int
}

// ReadMetadata never fails: anything that cannot be read is left nil
func ReadMetadata(data []byte) (meta Metadata) {
	// png and gif typically do not have exif data
	if x, err := exif.Decode(bytes.NewReader(data)); err == nil && x != nil {
		meta.CapturedAt = captureTime(x)
		if width, ok := tagToInt(exif.PixelXDimension, x); ok && width > 0 {
			meta.Width = &width
		}
		if height, ok := tagToInt(exif.PixelYDimension, x); ok && height > 0 {
			meta.Height = &height
		}
	}
	if meta.Width == nil || meta.Height == nil {
		if config, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			meta.Width = &config.Width
			meta.Height = &config.Height
		} else {
			meta.Width, meta.Height = nil, nil
		}
	}
	return
}

// captureTime reads DateTimeOriginal (or DateTime) as wall clock time in the
// zone it was taken: the EXIF offset tag if any, else the zone at the GPS
// position, else UTC.
func captureTime(x *exif.Exif) *time.Time {
	tag, err := x.Get(exif.DateTimeOriginal)
	if err != nil {
		if tag, err = x.Get(exif.DateTime); err != nil {
			return nil
		}
	}
	value, err := tag.StringVal()
	if err != nil {
		return nil
	}
	t, err := time.ParseInLocation(exifTimeLayout, strings.TrimRight(strings.TrimSpace(value), "\x00"), captureLocation(x))
	if err != nil {
		return nil
	}
	return &t
}

func captureLocation(x *exif.Exif) *time.Location {
	if tag, err := x.Get(exif.FieldName("OffsetTimeOriginal")); err == nil {
		if s, err := tag.StringVal(); err == nil {
			if offset := getTimeOffsetFrom(strings.TrimSpace(s)); offset != nil {
				return time.FixedZone("", *offset)
			}
		}
	}
	if lat, long, err := x.LatLong(); err == nil {
		if zone, err := time.LoadLocation(timezonemapper.LatLngToTimezoneString(lat, long)); err == nil && zone != nil {
			return zone
		}
	}
	return time.UTC
}

// tagToInt is a helper to convert exif tag values to ints
func tagToInt(tag exif.FieldName, x *exif.Exif) (int, bool) {
	if t, err := x.Get(tag); err == nil && t != nil {
		if i, err := t.Int(0); err == nil {
			return i, true
		}
		if num, den, err := t.Rat2(0); err == nil && den != 0 {
			return int(num / den), true
		}
	}
	return 0, false
}

// getTimeOffsetFrom return offset in seconds (or nil on error), input format is "+09:00"
func getTimeOffsetFrom(s string) *int {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	result := hours * 3600
	if strings.HasPrefix(parts[0], "-") {
		result -= mins * 60
	} else {
		result += mins * 60
	}
	return &result
}
