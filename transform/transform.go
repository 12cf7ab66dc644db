// Package transform turns original image bytes into derivatives
package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"math"
	"net/http"
	"strings"

	"photogallery/errs"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"

	// Decoders for formats we accept on input
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type Result struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

type Transformer interface {
	Transform(ctx context.Context, data []byte, opts Options) (Result, error)
}

// Identity returns its input unchanged. It stands in when transforms are disabled.
type Identity struct{}

func (Identity) Transform(ctx context.Context, data []byte, opts Options) (Result, error) {
	return Result{Data: data, ContentType: http.DetectContentType(data)}, nil
}

// Enabled reports whether t actually transforms images
func Enabled(t Transformer) bool {
	switch t.(type) {
	case nil, Identity, *Identity:
		return false
	}
	return true
}

// Native is the in-process transformer
type Native struct {
	DefaultFormat  string // used for "auto", "webp", "avif" and when no format is asked for
	DefaultQuality int
	MaxEdge        int // output edge limit, MaxEdge when zero
}

func NewNative(format string, quality int) *Native {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	if _, ok := encoders[format]; !ok {
		format = "jpeg"
	}
	return &Native{DefaultFormat: format, DefaultQuality: quality}
}

func (n *Native) Transform(ctx context.Context, data []byte, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, errs.Wrap(errs.KindTransformFailed, "cannot decode image", err)
	}
	img = rotate(img, opts.Rotate)
	img = n.resize(img, opts)
	if opts.Blur > 0 {
		img = imaging.Blur(img, math.Min(opts.Blur, 250)/2)
	}
	if opts.Sharpen > 0 {
		img = imaging.Sharpen(img, math.Min(opts.Sharpen, 10))
	}
	if err = ctx.Err(); err != nil {
		return Result{}, err
	}
	return n.encode(img, opts)
}

type encoder struct {
	format      imaging.Format
	contentType string
}

var encoders = map[string]encoder{
	"jpeg": {imaging.JPEG, "image/jpeg"},
	"jpg":  {imaging.JPEG, "image/jpeg"},
	"png":  {imaging.PNG, "image/png"},
	"gif":  {imaging.GIF, "image/gif"},
	"bmp":  {imaging.BMP, "image/bmp"},
	"tiff": {imaging.TIFF, "image/tiff"},
}

func (n *Native) encode(img image.Image, opts Options) (Result, error) {
	enc, ok := encoders[strings.ToLower(opts.Format)]
	if !ok {
		// auto, webp, avif or nothing requested
		enc = encoders[n.DefaultFormat]
	}
	quality := opts.Quality
	if quality <= 0 {
		quality = n.DefaultQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, enc.format, imaging.JPEGQuality(quality)); err != nil {
		return Result{}, errs.Wrap(errs.KindTransformFailed, "cannot encode image", err)
	}
	size := img.Bounds().Size()
	return Result{Data: buf.Bytes(), ContentType: enc.contentType, Width: size.X, Height: size.Y}, nil
}

func rotate(img image.Image, degrees int) image.Image {
	switch ((degrees % 360) + 360) % 360 {
	case 90:
		// counter-clockwise in imaging, the service rotates clockwise
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return img
}

// target applies the device pixel ratio to the requested box
func target(opts Options) (int, int) {
	dpr := opts.DPR
	if dpr <= 0 {
		dpr = 1
	}
	return int(math.Round(float64(opts.Width) * dpr)), int(math.Round(float64(opts.Height) * dpr))
}

func (n *Native) resize(img image.Image, opts Options) image.Image {
	w, h := target(opts)
	if w == 0 && h == 0 {
		return img
	}
	size := img.Bounds().Size()
	w, h = limitBox(w, h, size, n.maxEdge())
	switch opts.Fit {
	case FitContain:
		cw, ch := containSize(size, w, h)
		return imaging.Resize(img, cw, ch, imaging.Lanczos)
	case FitCover:
		if w == 0 || h == 0 {
			return imaging.Resize(img, w, h, imaging.Lanczos)
		}
		return imaging.Fill(img, w, h, anchor(opts.Gravity), imaging.Lanczos)
	case FitCrop:
		if w == 0 || h == 0 {
			return scaleDown(img, w, h)
		}
		if size.X <= w && size.Y <= h {
			return img
		}
		return imaging.Fill(img, min(w, size.X), min(h, size.Y), anchor(opts.Gravity), imaging.Lanczos)
	case FitPad:
		if w == 0 || h == 0 {
			cw, ch := containSize(size, w, h)
			return imaging.Resize(img, cw, ch, imaging.Lanczos)
		}
		return pad(img, w, h)
	default:
		return scaleDown(img, w, h)
	}
}

func (n *Native) maxEdge() int {
	if n.MaxEdge > 0 {
		return n.MaxEdge
	}
	return MaxEdge
}

// limitBox shrinks the requested w x h box, keeping its aspect ratio, until
// no edge exceeds maxEdge or MaxDPR times the matching source edge.
// Zero stays zero (unbounded).
func limitBox(w, h int, size image.Point, maxEdge int) (int, int) {
	scale := 1.0
	bound := func(want, limit int) {
		if want > limit {
			scale = math.Min(scale, float64(limit)/float64(want))
		}
	}
	bound(w, maxEdge)
	bound(h, maxEdge)
	bound(w, size.X*MaxDPR)
	bound(h, size.Y*MaxDPR)
	if scale == 1 {
		return w, h
	}
	shrink := func(v int) int {
		if v == 0 {
			return 0
		}
		return max(1, int(math.Floor(float64(v)*scale+1e-9)))
	}
	return shrink(w), shrink(h)
}

// scaleDown shrinks img to fit into w x h, never enlarging it. Zero means unbounded.
func scaleDown(img image.Image, w, h int) image.Image {
	size := img.Bounds().Size()
	if w == 0 {
		w = size.X
	}
	if h == 0 {
		h = size.Y
	}
	return resize.Thumbnail(uint(w), uint(h), img, resize.Lanczos3)
}

// containSize scales size to fit into the w x h box, keeping the aspect ratio
func containSize(size image.Point, w, h int) (int, int) {
	if w == 0 {
		return int(math.Round(float64(size.X) * float64(h) / float64(size.Y))), h
	}
	if h == 0 {
		return w, int(math.Round(float64(size.Y) * float64(w) / float64(size.X)))
	}
	ratio := math.Min(float64(w)/float64(size.X), float64(h)/float64(size.Y))
	return max(1, int(math.Round(float64(size.X)*ratio))), max(1, int(math.Round(float64(size.Y)*ratio)))
}

// pad fits img into w x h and centers it on a white canvas of exactly that size
func pad(img image.Image, w, h int) image.Image {
	cw, ch := containSize(img.Bounds().Size(), w, h)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, xdraw.Src)
	x0, y0 := (w-cw)/2, (h-ch)/2
	xdraw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+cw, y0+ch), img, img.Bounds(), xdraw.Over, nil)
	return dst
}

func anchor(gravity string) imaging.Anchor {
	switch gravity {
	case "left":
		return imaging.Left
	case "right":
		return imaging.Right
	case "top":
		return imaging.Top
	case "bottom":
		return imaging.Bottom
	case "top-left":
		return imaging.TopLeft
	case "top-right":
		return imaging.TopRight
	case "bottom-left":
		return imaging.BottomLeft
	case "bottom-right":
		return imaging.BottomRight
	}
	return imaging.Center
}
