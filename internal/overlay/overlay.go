// Package overlay renders a stream's last recognition result over a video surface.
package overlay

import (
	"image"
	"image/color"

	"github.com/andresmejia3/faceguard/internal/types"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Annotation is what the render path needs from a stream on each paint tick.
// Box is in frame pixels; FrameWidth/FrameHeight describe the frame it was found in.
type Annotation struct {
	Box         types.Rect     `json:"box"`
	HasBox      bool           `json:"has_box"`
	FrameWidth  int            `json:"frame_width"`
	FrameHeight int            `json:"frame_height"`
	Message     string         `json:"message"`
	Liveness    types.Liveness `json:"liveness"`
}

var (
	BoxColor     = color.RGBA{R: 255, A: 255}
	TrustedColor = color.RGBA{B: 255, A: 255}
	WarningColor = color.RGBA{R: 255, G: 255, A: 255}
)

// LabelColor picks the trusted colour for a live face and the warning colour otherwise.
func LabelColor(l types.Liveness) color.RGBA {
	if l == types.LivenessLive {
		return TrustedColor
	}
	return WarningColor
}

// Scale maps the annotation box onto a surface of the given size.
func Scale(a Annotation, surfaceW, surfaceH int) image.Rectangle {
	if !a.HasBox || a.FrameWidth <= 0 || a.FrameHeight <= 0 {
		return image.Rectangle{}
	}
	sx := float64(surfaceW) / float64(a.FrameWidth)
	sy := float64(surfaceH) / float64(a.FrameHeight)
	return image.Rect(
		int(float64(a.Box.Left)*sx),
		int(float64(a.Box.Top)*sy),
		int(float64(a.Box.Right)*sx),
		int(float64(a.Box.Bottom)*sy),
	)
}

// labelOffset is how far above the box the label's top edge sits.
const labelOffset = 15

// Draw paints the box and, when there is something to say and room to say it, the label.
// dst is the display surface; the box is scaled from frame to surface coordinates.
func Draw(dst *image.RGBA, a Annotation) {
	b := dst.Bounds()
	rect := Scale(a, b.Dx(), b.Dy()).Add(b.Min)
	if rect.Empty() {
		return
	}
	strokeRect(dst, rect, BoxColor)

	x, y := rect.Min.X-b.Min.X, rect.Min.Y-b.Min.Y
	if a.Message == "" || x <= 0 || y <= 0 {
		return
	}
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(LabelColor(a.Liveness)),
		Face: face,
		Dot:  fixed.P(rect.Min.X, rect.Min.Y-labelOffset+face.Ascent),
	}
	d.DrawString(a.Message)
}

// strokeRect draws a 1px outline, clipped to the image.
func strokeRect(img *image.RGBA, rect image.Rectangle, c color.RGBA) {
	bounds := img.Bounds()
	set := func(x, y int) {
		if !(image.Point{X: x, Y: y}).In(bounds) {
			return
		}
		off := img.PixOffset(x, y)
		img.Pix[off] = c.R
		img.Pix[off+1] = c.G
		img.Pix[off+2] = c.B
		img.Pix[off+3] = c.A
	}
	for x := rect.Min.X; x < rect.Max.X; x++ {
		set(x, rect.Min.Y)
		set(x, rect.Max.Y-1)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		set(rect.Min.X, y)
		set(rect.Max.X-1, y)
	}
}
