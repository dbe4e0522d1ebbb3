package main

import (
	"fmt"
	"strings"

	"github.com/davidbyttow/govips/v2/vips"
)

const defaultQuality = 75

type Options struct {
	Width   int
	Quality int
	Type    vips.ImageType
}

var ImageTypes = map[vips.ImageType]string{
	vips.ImageTypeJPEG: "jpeg",
	vips.ImageTypePNG:  "png",
	vips.ImageTypeWEBP: "webp",
	vips.ImageTypeAVIF: "avif",
}

func NewOption() Options {
	return Options{
		Width:   0,
		Quality: defaultQuality,
		Type:    vips.ImageTypeUnknown,
	}
}

// typeFromMime maps an image/* media type to one the optimizer can encode.
func typeFromMime(mimeType string) vips.ImageType {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
	if name == "jpg" {
		name = "jpeg"
	}
	for t, n := range ImageTypes {
		if n == name {
			return t
		}
	}
	return vips.ImageTypeUnknown
}

func mimeOf(t vips.ImageType) string {
	return "image/" + ImageTypes[t]
}

// encodable reports whether images of type t can be written back out.
func encodable(t vips.ImageType) bool {
	_, ok := ImageTypes[t]
	return ok
}

func exportImage(image *vips.ImageRef, t vips.ImageType, quality int) ([]byte, error) {
	switch t {
	case vips.ImageTypeJPEG:
		param := vips.NewJpegExportParams()
		param.Quality = quality
		out, _, err := image.ExportJpeg(param)
		return out, err
	case vips.ImageTypePNG:
		out, _, err := image.ExportPng(vips.NewPngExportParams())
		return out, err
	case vips.ImageTypeWEBP:
		param := vips.NewWebpExportParams()
		param.Quality = quality
		out, _, err := image.ExportWebp(param)
		return out, err
	case vips.ImageTypeAVIF:
		param := vips.NewAvifExportParams()
		param.Quality = quality
		out, _, err := image.ExportAvif(param)
		return out, err
	default:
		return nil, fmt.Errorf("unsupported image type: %v", t)
	}
}

// Process shrinks image to option.Width, never enlarging it, and encodes it
// as option.Type or, when unset, the source format.
func Process(image *vips.ImageRef, option Options) ([]byte, vips.ImageType, error) {
	if option.Width > 0 && option.Width < image.Width() {
		scale := float64(option.Width) / float64(image.Width())
		if err := image.Resize(scale, vips.KernelLanczos3); err != nil {
			return nil, vips.ImageTypeUnknown, err
		}
	}
	t := option.Type
	if t == vips.ImageTypeUnknown {
		t = image.Format()
	}
	quality := option.Quality
	if quality <= 0 {
		quality = defaultQuality
	}
	out, err := exportImage(image, t, quality)
	return out, t, err
}

// ImageRequest is everything that determines an optimized response. It is
// gob-encoded to derive the response cache key.
type ImageRequest struct {
	Options
	Source string
}

func newImageRequest(source string) *ImageRequest {
	return &ImageRequest{
		Options: NewOption(),
		Source:  source,
	}
}
