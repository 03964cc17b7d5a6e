// Package imgdiff compares two screenshots under a perceptual tolerance and
// renders a highlighted diff image when they differ.
package imgdiff

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	_ "image/jpeg"

	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/webp"

	"github.com/use-agent/pagediff/models"
)

// Result is the outcome of one comparison.
type Result struct {
	Equal      bool
	DiffPixels int
	Width      int
	Height     int

	// DiffImage is a PNG overlay of the differing regions, set only when
	// Equal is false. It is a visual aid and plays no part in Equal.
	DiffImage []byte
}

// Comparator compares encoded images. It is safe for concurrent use.
type Comparator struct {
	opts Options
}

// New creates a Comparator with the given options.
func New(opts Options) *Comparator {
	return &Comparator{opts: opts}
}

// Compare decodes two encoded images (JPEG, PNG or WebP) and compares them.
// Undecodable input is a COMPARISON_FAILED error.
func (c *Comparator) Compare(a, b []byte) (*Result, error) {
	imgA, _, err := image.Decode(bytes.NewReader(a))
	if err != nil {
		return nil, models.NewDiffError(models.ErrCodeComparison, "failed to decode before image", err)
	}
	imgB, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, models.NewDiffError(models.ErrCodeComparison, "failed to decode after image", err)
	}
	return c.CompareImages(imgA, imgB)
}

// CompareImages compares two decoded images.
//
// Images of different sizes are compared on the union canvas. Pixels that
// exist in only one of them always count as different, so any size
// mismatch yields Equal=false together with a full-size diff image.
func (c *Comparator) CompareImages(a, b image.Image) (*Result, error) {
	na, nb := toNRGBA(a), toNRGBA(b)
	wa, ha := na.Rect.Dx(), na.Rect.Dy()
	wb, hb := nb.Rect.Dx(), nb.Rect.Dy()
	w, h := max(wa, wb), max(ha, hb)

	res := &Result{Width: w, Height: h}
	if w == 0 || h == 0 {
		res.Equal = true
		return res, nil
	}

	diff := make([]bool, w*h)
	box := emptyBox()

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= wa || y >= ha || x >= wb || y >= hb {
				diff[y*w+x] = true
				res.DiffPixels++
				box.add(x, y)
				continue
			}
			if c.samePixel(na, nb, x, y) {
				continue
			}
			diff[y*w+x] = true
			res.DiffPixels++
			box.add(x, y)
		}
	}

	sameSize := wa == wb && ha == hb
	res.Equal = res.DiffPixels == 0 ||
		(sameSize && c.opts.IgnoreCaret && box.isCaret())
	if res.Equal {
		return res, nil
	}

	overlay, err := c.renderDiff(na, diff, w, h)
	if err != nil {
		return nil, models.NewDiffError(models.ErrCodeComparison, "failed to encode diff image", err)
	}
	res.DiffImage = overlay
	return res, nil
}

func (c *Comparator) samePixel(a, b *image.NRGBA, x, y int) bool {
	pa, pb := a.PixOffset(x, y), b.PixOffset(x, y)
	ra, ga, ba, aa := a.Pix[pa], a.Pix[pa+1], a.Pix[pa+2], a.Pix[pa+3]
	rb, gb, bb, ab := b.Pix[pb], b.Pix[pb+1], b.Pix[pb+2], b.Pix[pb+3]
	if ra == rb && ga == gb && ba == bb && aa == ab {
		return true
	}

	if deltaE(ra, ga, ba, aa, rb, gb, bb, ab) <= c.opts.Tolerance {
		return true
	}

	if c.opts.IgnoreAntialiasing {
		tol := c.opts.AntialiasingTolerance
		if antialiased(a, x, y, b, tol) || antialiased(b, x, y, a, tol) {
			return true
		}
	}
	return false
}

// deltaE returns the CIEDE2000 distance on the standard 0..100 scale,
// with both colours blended over white first.
func deltaE(r1, g1, b1, a1, r2, g2, b2, a2 uint8) float64 {
	c1 := colorful.Color{R: blend(r1, a1), G: blend(g1, a1), B: blend(b1, a1)}
	c2 := colorful.Color{R: blend(r2, a2), G: blend(g2, a2), B: blend(b2, a2)}
	// go-colorful reports CIEDE2000 scaled down by 100.
	return c1.DistanceCIEDE2000(c2) * 100
}

func blend(v, alpha uint8) float64 {
	a := float64(alpha) / 255
	return (255 + (float64(v)-255)*a) / 255
}

// renderDiff paints differing pixels in the highlight colour over a faded
// greyscale copy of the before image. Pixels outside either image are
// always marked as differing, so every faded pixel exists in a.
func (c *Comparator) renderDiff(a *image.NRGBA, diff []bool, w, h int) ([]byte, error) {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	hl := c.opts.HighlightColor

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if diff[y*w+x] {
				out.SetNRGBA(x, y, color.NRGBA{R: hl.R, G: hl.G, B: hl.B, A: 0xff})
				continue
			}
			out.SetNRGBA(x, y, faded(a, x, y))
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func faded(img *image.NRGBA, x, y int) color.NRGBA {
	p := img.PixOffset(x, y)
	l := brightness(img.Pix[p], img.Pix[p+1], img.Pix[p+2])
	v := uint8(255 + (l-255)*0.1)
	return color.NRGBA{R: v, G: v, B: v, A: 0xff}
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out
}

// bbox tracks the bounding box of differing pixels.
type bbox struct {
	minX, minY, maxX, maxY int
}

func emptyBox() bbox {
	return bbox{minX: int(^uint(0) >> 1), minY: int(^uint(0) >> 1), maxX: -1, maxY: -1}
}

func (b *bbox) add(x, y int) {
	b.minX, b.maxX = min(b.minX, x), max(b.maxX, x)
	b.minY, b.maxY = min(b.minY, y), max(b.maxY, y)
}

// maxCaretHeight is about two lines of body text. Taller single-column
// differences are rules or borders, not a cursor.
const maxCaretHeight = 48

// isCaret reports whether the differences fit in one pixel column no taller
// than a text cursor.
func (b bbox) isCaret() bool {
	return b.maxX >= 0 && b.maxX == b.minX && b.maxY-b.minY < maxCaretHeight
}
