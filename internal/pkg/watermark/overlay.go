package watermark

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	overlayPadding = 4
	overlayScale   = 4
	overlayAngle   = 45
)

var overlayInk = color.NRGBA{R: 204, G: 204, B: 204, A: 255}

// overlayPNG renders text on a transparent canvas, upscales it and turns it
// by 45 degrees. The result is encoded as PNG.
func overlayPNG(text string) ([]byte, error) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 2*overlayPadding
	height := face.Metrics().Height.Ceil() + 2*overlayPadding

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(overlayInk),
		Face: face,
		Dot:  fixed.P(overlayPadding, overlayPadding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	scaled := imaging.Resize(canvas, width*overlayScale, height*overlayScale, imaging.NearestNeighbor)
	rotated := imaging.Rotate(scaled, overlayAngle, color.Transparent)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, rotated, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
