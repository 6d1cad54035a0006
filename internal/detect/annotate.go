package detect

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sweeney/kiosk-agent/internal/logic"
)

var (
	boxColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	labelColor = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	attrColor  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

const boxThickness = 2

// Annotate returns a copy of the frame with a box and confidence label per
// face. When attrs is set, a line of attribute text is drawn under the face
// chosen by sel. The frame itself is never modified.
func Annotate(f Frame, faces []logic.FaceBox, attrs *logic.Attributes, sel Selection) *image.RGBA {
	b := f.Image.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, f.Image, b.Min, draw.Src)

	for _, face := range faces {
		r := image.Rect(face.X, face.Y, face.X+face.Width, face.Y+face.Height).Add(b.Min)
		drawRect(dst, r, boxColor)
		label := fmt.Sprintf("face %.2f", face.Confidence)
		drawLabel(dst, image.Pt(r.Min.X, r.Min.Y-2), label, boxColor, labelColor)
	}

	if attrs != nil && len(faces) > 0 {
		face := SelectFace(faces, sel)
		text := fmt.Sprintf("%s, %d, %s", attrs.Gender, attrs.Age, attrs.DominantEmotion)
		pt := image.Pt(face.X, face.Y+face.Height+basicfont.Face7x13.Height).Add(b.Min)
		drawLabel(dst, pt, text, labelColor, attrColor)
	}
	return dst
}

// drawRect outlines r, clipped to the image.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+boxThickness),
		image.Rect(r.Min.X, r.Max.Y-boxThickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxThickness, r.Max.Y),
		image.Rect(r.Max.X-boxThickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

// drawLabel draws text with its baseline at pt on a filled background.
func drawLabel(img *image.RGBA, pt image.Point, text string, bg, fg color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(fg), Face: face}
	width := d.MeasureString(text).Ceil()

	if pt.Y-face.Ascent < img.Bounds().Min.Y {
		pt.Y = img.Bounds().Min.Y + face.Ascent
	}
	bgRect := image.Rect(pt.X, pt.Y-face.Ascent, pt.X+width, pt.Y+face.Descent)
	draw.Draw(img, bgRect.Intersect(img.Bounds()), image.NewUniform(bg), image.Point{}, draw.Src)

	d.Dot = fixed.P(pt.X, pt.Y)
	d.DrawString(text)
}
