package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"photogallery/errs"
)

// Fit modes, named after the image service vocabulary
const (
	FitScaleDown = "scale-down"
	FitContain   = "contain"
	FitCover     = "cover"
	FitCrop      = "crop"
	FitPad       = "pad"
)

// Limits on requested output. Larger requests are rejected by ParseOptions
// and clamped by Native.
const (
	MaxEdge = 4096
	MaxDPR  = 4
)

// Options is the declarative operation set of one transform
type Options struct {
	Width   int
	Height  int
	DPR     float64
	Fit     string
	Gravity string
	Quality int
	Format  string
	Sharpen float64
	Rotate  int
	Blur    float64
	// Extra holds parameters that are passed through but not interpreted
	Extra map[string]string
}

// Bound returns options that shrink an image to fit maxEdge x maxEdge
func Bound(maxEdge int, format string, quality int) Options {
	return Options{Width: maxEdge, Height: maxEdge, Fit: FitScaleDown, Format: format, Quality: quality}
}

// ParseOptions reads capability-named parameters (width, height, ...)
func ParseOptions(params map[string]string) (Options, error) {
	opts := Options{}
	var err error
	for k, v := range params {
		switch k {
		case "width":
			opts.Width, err = parseInt(k, v)
		case "height":
			opts.Height, err = parseInt(k, v)
		case "quality":
			opts.Quality, err = parseInt(k, v)
		case "rotate":
			opts.Rotate, err = parseInt(k, v)
		case "dpr":
			opts.DPR, err = parseFloat(k, v)
		case "sharpen":
			opts.Sharpen, err = parseFloat(k, v)
		case "blur":
			opts.Blur, err = parseFloat(k, v)
		case "fit":
			opts.Fit = v
		case "gravity":
			opts.Gravity = v
		case "format":
			opts.Format = v
		default:
			if opts.Extra == nil {
				opts.Extra = map[string]string{}
			}
			opts.Extra[k] = v
		}
		if err != nil {
			return Options{}, err
		}
	}
	if opts.Width < 0 || opts.Height < 0 || opts.DPR < 0 || opts.Blur < 0 || opts.Sharpen < 0 {
		return Options{}, errs.New(errs.KindValidation, "invalid parameter: negative value")
	}
	if opts.Width > MaxEdge || opts.Height > MaxEdge {
		return Options{}, errs.New(errs.KindValidation, fmt.Sprintf("invalid parameter: width and height must be at most %d", MaxEdge))
	}
	if opts.DPR > MaxDPR {
		return Options{}, errs.New(errs.KindValidation, fmt.Sprintf("invalid parameter: dpr must be at most %d", MaxDPR))
	}
	if opts.Quality < 0 || opts.Quality > 100 {
		return Options{}, errs.New(errs.KindValidation, "invalid parameter: quality")
	}
	return opts, nil
}

// Params is the inverse of ParseOptions, omitting zero values
func (o Options) Params() map[string]string {
	params := map[string]string{}
	for k, v := range o.Extra {
		params[k] = v
	}
	setInt := func(k string, v int) {
		if v != 0 {
			params[k] = strconv.Itoa(v)
		}
	}
	setFloat := func(k string, v float64) {
		if v != 0 {
			params[k] = strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	setString := func(k, v string) {
		if v != "" {
			params[k] = v
		}
	}
	setInt("width", o.Width)
	setInt("height", o.Height)
	setInt("quality", o.Quality)
	setInt("rotate", o.Rotate)
	setFloat("dpr", o.DPR)
	setFloat("sharpen", o.Sharpen)
	setFloat("blur", o.Blur)
	setString("fit", o.Fit)
	setString("gravity", o.Gravity)
	setString("format", o.Format)
	return params
}

func (o Options) String() string {
	params := o.Params()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params[k]
	}
	return strings.Join(parts, ",")
}

func parseInt(key, value string) (int, error) {
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, errs.Wrap(errs.KindValidation, fmt.Sprintf("invalid parameter: %s", key), err)
	}
	return i, nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errs.Wrap(errs.KindValidation, fmt.Sprintf("invalid parameter: %s", key), err)
	}
	return f, nil
}
