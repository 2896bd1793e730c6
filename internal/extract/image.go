package extract

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG
	"strings"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP

	"github.com/shashankrm11/malscan/internal/domain/feature"
)

// Image feature names.
const (
	ImageFormat = "Format"
	ImageMode   = "Mode"
	ImageWidth  = "Width"
	ImageHeight = "Height"
)

// ExtractImage reads the container header only; pixel data is never decoded.
func ExtractImage(data []byte) (m *feature.Map) {
	defer func() {
		if recover() != nil {
			m = feature.NewMap(0)
		}
	}()

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return feature.NewMap(0)
	}

	m = feature.NewMap(4)
	m.Set(ImageFormat, feature.String(strings.ToUpper(format)))
	m.Set(ImageMode, feature.String(modeName(cfg.ColorModel)))
	m.Set(ImageWidth, feature.Int(cfg.Width))
	m.Set(ImageHeight, feature.Int(cfg.Height))
	return m
}

// modeName maps a color model to the customary mode vocabulary. Decoders report
// opaque truecolor as RGBA/RGBA64 and alpha truecolor as NRGBA/NRGBA64; JPEG
// YCbCr is reported as RGB.
func modeName(model color.Model) string {
	if _, ok := model.(color.Palette); ok {
		return "P"
	}
	switch model {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.AlphaModel, color.Alpha16Model:
		return "LA"
	case color.CMYKModel:
		return "CMYK"
	case color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel:
		return "RGBA"
	default:
		return "RGB"
	}
}
