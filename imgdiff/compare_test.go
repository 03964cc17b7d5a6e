package imgdiff

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/use-agent/pagediff/models"
)

// page draws a smooth synthetic "screenshot": a low-contrast gradient with
// flat panels aligned to the 16px JPEG macroblock grid.
func page(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(200 + 40*x/w),
				G: uint8(200 + 40*y/h),
				B: 220,
				A: 0xff,
			})
		}
	}
	fill(img, image.Rect(32, 48, 160, 112), color.NRGBA{R: 60, G: 90, B: 150, A: 0xff})
	fill(img, image.Rect(176, 128, 304, 208), color.NRGBA{R: 240, G: 240, B: 240, A: 0xff})
	return img
}

func fill(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCompare_Identical(t *testing.T) {
	data := encodePNG(t, page(320, 240))
	res, err := New(DefaultOptions()).Compare(data, data)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal || res.DiffPixels != 0 || res.DiffImage != nil {
		t.Errorf("identical images reported as different: %+v", res)
	}
}

func TestCompare_JPEGReencodingIsTolerated(t *testing.T) {
	first := encodeJPEG(t, page(320, 240), 90)

	decoded, err := jpeg.Decode(bytes.NewReader(first))
	if err != nil {
		t.Fatal(err)
	}
	second := encodeJPEG(t, decoded, 90)

	if bytes.Equal(first, second) {
		t.Log("re-encoding was lossless; comparison is trivially equal")
	}

	res, err := New(DefaultOptions()).Compare(first, second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal {
		t.Errorf("re-encoding noise flagged as a visual diff (%d pixels)", res.DiffPixels)
	}
}

// textPage draws dark glyph-like strokes at offsets that do not line up
// with the JPEG block grid, the worst case for ringing on re-encoding.
func textPage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fill(img, img.Rect, color.NRGBA{R: 255, G: 255, B: 255, A: 0xff})
	ink := color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	for line := 0; line < 6; line++ {
		y := 13 + line*27
		for x := 11; x+7 < w; x += 9 {
			fill(img, image.Rect(x, y, x+2, y+14), ink)
			if x%2 == 1 {
				fill(img, image.Rect(x, y+6, x+6, y+8), ink)
			}
		}
	}
	return img
}

func TestCompare_JPEGReencodingOfTextIsTolerated(t *testing.T) {
	first := encodeJPEG(t, textPage(320, 180), 90)

	decoded, err := jpeg.Decode(bytes.NewReader(first))
	if err != nil {
		t.Fatal(err)
	}
	second := encodeJPEG(t, decoded, 90)

	res, err := New(DefaultOptions()).Compare(first, second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal {
		t.Errorf("re-encoding noise on text edges flagged as a visual diff (%d pixels)", res.DiffPixels)
	}
}

func TestCompare_RedBannerIsADifference(t *testing.T) {
	before := page(320, 240)
	after := page(320, 240)
	fill(after, image.Rect(0, 0, 320, 40), color.NRGBA{R: 0xe0, G: 0x10, B: 0x10, A: 0xff})

	res, err := New(DefaultOptions()).Compare(encodeJPEG(t, before, 90), encodeJPEG(t, after, 90))
	if err != nil {
		t.Fatal(err)
	}
	if res.Equal {
		t.Fatal("red banner was not detected")
	}
	if len(res.DiffImage) == 0 {
		t.Fatal("expected a diff image")
	}

	overlay, err := png.Decode(bytes.NewReader(res.DiffImage))
	if err != nil {
		t.Fatalf("diff image is not a PNG: %v", err)
	}
	if overlay.Bounds().Dx() != 320 || overlay.Bounds().Dy() != 240 {
		t.Errorf("diff image size = %v", overlay.Bounds())
	}

	highlighted := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 320; x++ {
			r, g, b, _ := overlay.At(x, y).RGBA()
			if r>>8 == 0xff && g>>8 == 0x00 && b>>8 == 0xff {
				highlighted++
			}
		}
	}
	if highlighted < 320*40/2 {
		t.Errorf("only %d banner pixels highlighted", highlighted)
	}

	r, g, b, _ := overlay.At(160, 230).RGBA()
	if r != g || g != b || r>>8 < 200 {
		t.Errorf("unchanged pixel should be faded grey, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

func TestCompare_DifferentDimensions(t *testing.T) {
	short := encodePNG(t, page(320, 200))
	tall := encodePNG(t, page(320, 240))

	res, err := New(DefaultOptions()).Compare(short, tall)
	if err != nil {
		t.Fatalf("size mismatch must not error: %v", err)
	}
	if res.Equal {
		t.Error("size mismatch must report a difference")
	}
	if res.Width != 320 || res.Height != 240 {
		t.Errorf("union canvas = %dx%d, want 320x240", res.Width, res.Height)
	}
	if res.DiffPixels < 320*40 {
		t.Errorf("padding rows should all differ, got %d pixels", res.DiffPixels)
	}
}

func TestCompare_Caret(t *testing.T) {
	blank := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	fill(blank, blank.Rect, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	withCaret := image.NewNRGBA(blank.Rect)
	copy(withCaret.Pix, blank.Pix)
	fill(withCaret, image.Rect(20, 10, 21, 24), color.NRGBA{A: 255})

	a, b := encodePNG(t, blank), encodePNG(t, withCaret)

	res, err := New(DefaultOptions()).Compare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Equal {
		t.Error("a one-pixel caret should be ignored")
	}

	opts := DefaultOptions()
	opts.IgnoreCaret = false
	res, err = New(opts).Compare(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if res.Equal {
		t.Error("with IgnoreCaret off the caret is a difference")
	}
}

func TestCompare_FullHeightRuleIsNotACaret(t *testing.T) {
	blank := image.NewNRGBA(image.Rect(0, 0, 64, 400))
	fill(blank, blank.Rect, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	withRule := image.NewNRGBA(blank.Rect)
	copy(withRule.Pix, blank.Pix)
	fill(withRule, image.Rect(20, 0, 21, 400), color.NRGBA{A: 255})

	res, err := New(DefaultOptions()).Compare(encodePNG(t, blank), encodePNG(t, withRule))
	if err != nil {
		t.Fatal(err)
	}
	if res.Equal {
		t.Error("a full-height 1px rule must count as a difference")
	}
	if res.DiffPixels != 400 {
		t.Errorf("DiffPixels = %d, want 400", res.DiffPixels)
	}
}

func TestCompare_ToleranceIsConfigurable(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	b := image.NewNRGBA(a.Rect)
	fill(a, a.Rect, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	fill(b, b.Rect, color.NRGBA{R: 112, G: 100, B: 100, A: 255})

	loose := DefaultOptions()
	loose.Tolerance = 50
	res, _ := New(loose).CompareImages(a, b)
	if !res.Equal {
		t.Error("loose tolerance should absorb a small tint")
	}

	strict := DefaultOptions()
	strict.Tolerance = 0.5
	res, _ = New(strict).CompareImages(a, b)
	if res.Equal {
		t.Error("strict tolerance should flag a small tint")
	}
}

func TestCompare_InvalidInput(t *testing.T) {
	_, err := New(DefaultOptions()).Compare([]byte("not an image"), encodePNG(t, page(16, 16)))
	var de *models.DiffError
	if !errors.As(err, &de) || de.Code != models.ErrCodeComparison {
		t.Fatalf("expected COMPARISON_FAILED, got %v", err)
	}
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#ff00ff")
	if err != nil || c != (color.RGBA{R: 255, B: 255, A: 255}) {
		t.Errorf("ParseHexColor = %v, %v", c, err)
	}
	if _, err := ParseHexColor("red"); err == nil {
		t.Error("expected error for non-hex colour")
	}
}
