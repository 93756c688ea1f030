// Package frame decodes incoming video frames and renders the annotated frames sent back.
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/claude/posereps/internal/models"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// DefaultMaxPixels caps decoded frames at 4096x4096 when no limit is configured.
const DefaultMaxPixels = 4096 * 4096

var (
	statusBox     = image.Rect(0, 0, 320, 150)
	statusColor   = color.RGBA{R: 16, G: 117, B: 245, A: 255}
	landmarkColor = color.RGBA{R: 66, G: 117, B: 245, A: 255}
	jointColor    = color.RGBA{R: 230, G: 66, B: 245, A: 255}
)

// Overlay is the progress information drawn onto a frame.
type Overlay struct {
	Reps      int
	Phase     models.Phase
	Feedback  string
	Landmarks []models.Landmark
	// Highlight lists landmarks drawn in the joint colour, typically the ones
	// the current exercise measures.
	Highlight []models.LandmarkName
}

// JPEGCodec decodes JPEG frames and re-encodes them with an overlay.
type JPEGCodec struct {
	quality   int
	maxPixels int
}

// NewJPEGCodec returns a codec encoding at quality (1-100) that rejects frames
// larger than maxPixels. Out of range values use DefaultQuality and DefaultMaxPixels.
func NewJPEGCodec(quality, maxPixels int) *JPEGCodec {
	if quality < 1 || quality > 100 {
		quality = DefaultQuality
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &JPEGCodec{quality: quality, maxPixels: maxPixels}
}

// Decode parses a JPEG frame. The header is checked first so an oversized
// frame fails before any pixel memory is allocated.
func (c *JPEGCodec) Decode(data []byte) (image.Image, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > c.maxPixels/cfg.Height {
		return nil, fmt.Errorf("decoding frame: %dx%d exceeds the %d pixel limit", cfg.Width, cfg.Height, c.maxPixels)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return img, nil
}

// Encode writes img as JPEG without annotations.
func (c *JPEGCodec) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Render draws o onto a copy of img and encodes the result.
func (c *JPEGCodec) Render(img image.Image, o Overlay) ([]byte, error) {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)

	drawLandmarks(canvas, o)
	drawStatus(canvas, o)
	return c.Encode(canvas)
}

func drawStatus(dst *image.RGBA, o Overlay) {
	box := statusBox.Intersect(dst.Bounds())
	draw.Draw(dst, box, image.NewUniform(statusColor), image.Point{}, draw.Src)

	d := &font.Drawer{Dst: dst, Src: image.White, Face: basicfont.Face7x13}
	lines := []struct {
		y    int
		text string
	}{
		{40, fmt.Sprintf("REPS: %d", o.Reps)},
		{80, fmt.Sprintf("STAGE: %s", o.Phase)},
		{120, o.Feedback},
	}
	for _, l := range lines {
		if l.text == "" {
			continue
		}
		d.Dot = fixed.P(10, l.y)
		d.DrawString(l.text)
	}
}

func drawLandmarks(dst *image.RGBA, o Overlay) {
	highlight := make(map[models.LandmarkName]bool, len(o.Highlight))
	for _, n := range o.Highlight {
		highlight[n] = true
	}
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	for _, l := range o.Landmarks {
		c, r := landmarkColor, 2
		if highlight[l.Name] {
			c, r = jointColor, 4
		}
		x, y := int(l.X*float64(w)), int(l.Y*float64(h))
		dot := image.Rect(x-r, y-r, x+r+1, y+r+1).Intersect(dst.Bounds())
		if dot.Empty() {
			continue
		}
		draw.Draw(dst, dot, image.NewUniform(c), image.Point{}, draw.Src)
	}
}
