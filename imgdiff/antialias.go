package imgdiff

import (
	"image"
	"math"
)

// antialiased reports whether the pixel at (x1, y1) in img looks like an
// anti-aliased edge pixel, following the Vysniauskas heuristic: among its
// eight neighbours it has both a darker and a brighter one, few identical
// ones, and the extreme neighbours sit inside flat regions in both images.
func antialiased(img *image.NRGBA, x1, y1 int, other *image.NRGBA, tol float64) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, w-1), min(y1+1, h-1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	var minDelta, maxDelta float64
	var minX, minY, maxX, maxY int
	center := lumaAt(img, x1, y1)

	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			delta := center - lumaAt(img, x, y)
			switch {
			case math.Abs(delta) <= tol:
				zeroes++
				if zeroes > 2 {
					return false
				}
			case delta < minDelta:
				minDelta, minX, minY = delta, x, y
			case delta > maxDelta:
				maxDelta, maxX, maxY = delta, x, y
			}
		}
	}

	if minDelta == 0 || maxDelta == 0 {
		return false
	}

	inBounds := func(x, y int) bool { return (image.Point{X: x, Y: y}).In(other.Rect) }
	darker := inBounds(minX, minY) && hasManySiblings(img, minX, minY) && hasManySiblings(other, minX, minY)
	brighter := inBounds(maxX, maxY) && hasManySiblings(img, maxX, maxY) && hasManySiblings(other, maxX, maxY)
	return darker || brighter
}

// hasManySiblings reports whether at least three neighbours of (x1, y1)
// share its exact colour.
func hasManySiblings(img *image.NRGBA, x1, y1 int) bool {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	x0, y0 := max(x1-1, 0), max(y1-1, 0)
	x2, y2 := min(x1+1, w-1), min(y1+1, h-1)

	zeroes := 0
	if x1 == x0 || x1 == x2 || y1 == y0 || y1 == y2 {
		zeroes = 1
	}

	p := img.PixOffset(x1, y1)
	for x := x0; x <= x2; x++ {
		for y := y0; y <= y2; y++ {
			if x == x1 && y == y1 {
				continue
			}
			q := img.PixOffset(x, y)
			if img.Pix[p] == img.Pix[q] && img.Pix[p+1] == img.Pix[q+1] &&
				img.Pix[p+2] == img.Pix[q+2] && img.Pix[p+3] == img.Pix[q+3] {
				zeroes++
			}
			if zeroes > 2 {
				return true
			}
		}
	}
	return false
}

func lumaAt(img *image.NRGBA, x, y int) float64 {
	p := img.PixOffset(x, y)
	return brightness(img.Pix[p], img.Pix[p+1], img.Pix[p+2])
}

func brightness(r, g, b uint8) float64 {
	return float64(r)*0.29889531 + float64(g)*0.58662247 + float64(b)*0.11448223
}
