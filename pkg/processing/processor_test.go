package processing

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/menta2k/vision-correct/pkg/types"
)

// createTextLikeImage draws a dark bar on a light background
func createTextLikeImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.RGBA{220, 220, 220, 255}
			if x >= width/4 && x < width*3/4 && y >= height/3 && y < height*2/3 {
				c = color.RGBA{60, 60, 60, 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func grayAt(img *image.NRGBA, x, y int) float64 {
	o := img.PixOffset(x, y)
	return (float64(img.Pix[o]) + float64(img.Pix[o+1]) + float64(img.Pix[o+2])) / 3
}

func TestEnhanceZeroParamsIsIdentity(t *testing.T) {
	p := NewProcessor()
	src := createTextLikeImage(40, 30)

	out := p.Enhance(src, Params{})
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 30 {
		t.Fatalf("Unexpected output size %v", out.Bounds())
	}
	for y := 0; y < 30; y++ {
		for x := 0; x < 40; x++ {
			r1, g1, b1, _ := src.At(x, y).RGBA()
			r2, g2, b2, _ := out.At(x, y).RGBA()
			if r1 != r2 || g1 != g2 || b1 != b2 {
				t.Fatalf("Pixel %d,%d changed with zero params", x, y)
			}
		}
	}
}

func TestEnhanceDoesNotModifyInput(t *testing.T) {
	p := NewProcessor()
	src := createTextLikeImage(40, 30).(*image.RGBA)
	before := append([]byte(nil), src.Pix...)

	p.Enhance(src, Params{Sharpen: 1, EdgeStrength: 0.5, LocalContrast: 0.5, Contrast: 20, Blur: 1})

	if !bytes.Equal(before, src.Pix) {
		t.Error("Enhance modified its input")
	}
}

func TestEnhanceEdgesDarkensBoundaries(t *testing.T) {
	p := NewProcessor()
	src := createTextLikeImage(40, 30)

	out := p.Enhance(src, Params{EdgeStrength: 0.5})

	// (9,15) sits just outside the dark bar's left edge
	if grayAt(out, 9, 15) >= 220 {
		t.Errorf("Expected edge pixel darkened, got %f", grayAt(out, 9, 15))
	}
	// Far from any edge
	if grayAt(out, 2, 2) != 220 {
		t.Errorf("Expected flat pixel untouched, got %f", grayAt(out, 2, 2))
	}
}

func TestEnhanceLocalContrastStretches(t *testing.T) {
	p := NewProcessor()
	src := createTextLikeImage(40, 30)

	out := p.Enhance(src, Params{LocalContrast: 1, TileSize: 40})

	if grayAt(out, 20, 15) != 0 {
		t.Errorf("Expected darkest pixel stretched to 0, got %f", grayAt(out, 20, 15))
	}
	if grayAt(out, 2, 2) != 255 {
		t.Errorf("Expected lightest pixel stretched to 255, got %f", grayAt(out, 2, 2))
	}
}

func TestEnhanceBlurSoftensEdges(t *testing.T) {
	p := NewProcessor()
	src := createTextLikeImage(40, 30)

	out := p.Enhance(src, Params{Blur: 2})

	g := grayAt(out, 10, 15)
	if g <= 60 || g >= 220 {
		t.Errorf("Expected blurred edge between 60 and 220, got %f", g)
	}
}

func TestEnhanceSharpenIncreasesEdgeContrast(t *testing.T) {
	p := NewProcessor()
	src := createTextLikeImage(40, 30)

	out := p.Enhance(src, Params{Sharpen: 1, SharpenSigma: 1})

	if grayAt(out, 9, 15) <= 220 {
		t.Errorf("Expected overshoot on the light side, got %f", grayAt(out, 9, 15))
	}
	if grayAt(out, 10, 15) >= 60 {
		t.Errorf("Expected undershoot on the dark side, got %f", grayAt(out, 10, 15))
	}
}

func TestEncodeAndDecode(t *testing.T) {
	p := NewProcessor()
	img := createTextLikeImage(16, 16)

	for _, format := range []string{"png", "jpg", "webp"} {
		var buf bytes.Buffer
		if err := p.Encode(&buf, img, format, 90); err != nil {
			t.Fatalf("%s: encode failed: %v", format, err)
		}
		decoded, err := p.DecodeBytes(buf.Bytes())
		if err != nil {
			t.Fatalf("%s: decode failed: %v", format, err)
		}
		if decoded.Bounds().Dx() != 16 {
			t.Errorf("%s: expected width 16, got %d", format, decoded.Bounds().Dx())
		}
	}

	if err := p.Encode(&bytes.Buffer{}, img, "bmp", 90); err == nil {
		t.Error("Expected error for unsupported format")
	}
	if _, err := p.DecodeBytes([]byte("not an image")); err == nil {
		t.Error("Expected error for garbage input")
	}
}

func TestSaveAndLoadImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTextLikeImage(20, 10)

	for _, name := range []string{"out.png", "out.jpg", "out.webp"} {
		path := filepath.Join(dir, name)
		format := filepath.Ext(name)[1:]
		if err := p.SaveImage(img, path, format, 90, false); err != nil {
			t.Fatalf("%s: save failed: %v", name, err)
		}
		loaded, err := p.LoadImage(path)
		if err != nil {
			t.Fatalf("%s: load failed: %v", name, err)
		}
		if loaded.Bounds().Dx() != 20 || loaded.Bounds().Dy() != 10 {
			t.Errorf("%s: unexpected bounds %v", name, loaded.Bounds())
		}
	}
}

func TestLoadImageFromURL(t *testing.T) {
	var encoded bytes.Buffer
	png.Encode(&encoded, createTextLikeImage(12, 8))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(encoded.Bytes())
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewProcessor()
	ctx := context.Background()

	img, err := p.LoadImageSmart(ctx, srv.URL+"/page.png")
	if err != nil {
		t.Fatalf("LoadImageSmart failed: %v", err)
	}
	if img.Bounds().Dx() != 12 {
		t.Errorf("Expected width 12, got %d", img.Bounds().Dx())
	}

	if _, err := p.LoadImageFromURL(ctx, srv.URL+"/page.html"); err == nil {
		t.Error("Expected error for non-image content type")
	}
	if _, err := p.LoadImageFromURL(ctx, srv.URL+"/missing"); err == nil {
		t.Error("Expected error for 404")
	}
	if _, err := p.LoadImageFromURL(ctx, "ftp://example.com/a.png"); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestCreateRegionOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTextLikeImage(40, 30)

	regions := []types.TextRegion{{Rectangle: types.Rectangle{X: 5, Y: 5, Width: 10, Height: 10}}}
	out := p.CreateRegionOverlay(img, regions, nil)

	o := out.PixOffset(5, 5)
	if out.Pix[o] != 0 || out.Pix[o+1] != 255 || out.Pix[o+2] != 0 {
		t.Errorf("Expected green outline at region corner, got %v", out.Pix[o:o+4])
	}
}

func BenchmarkEnhance(b *testing.B) {
	p := NewProcessor()
	img := createTextLikeImage(800, 600)
	params := Params{Sharpen: 0.8, EdgeStrength: 0.3, LocalContrast: 0.3, Contrast: 15, Brightness: 3, Blur: 1.2}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Enhance(img, params)
	}
}
