package correction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/menta2k/vision-correct/pkg/processing"
)

// ErrTaintedCanvas is returned when pixels drawn from a source without CORS
// clearance are read back
var ErrTaintedCanvas = errors.New("canvas is tainted by cross-origin data")

// LoadedImage is a decoded image plus whether its pixels may be read back
type LoadedImage struct {
	Image     image.Image
	CORSClean bool
}

// ImageLoader fetches an image source. With crossOrigin set the request asks
// for CORS clearance; the result reports whether it was granted.
type ImageLoader interface {
	Load(ctx context.Context, src string, crossOrigin bool) (LoadedImage, error)
}

// Surface is the engine's single offscreen processing buffer. Callers take
// turns; it is never used by two passes at once.
type Surface struct {
	mu  sync.Mutex
	buf *image.NRGBA
}

// Use draws img onto the surface and passes the pixels to fn while holding
// the surface. Unclean sources taint the surface and fn is not called.
func (s *Surface) Use(img LoadedImage, fn func(*image.NRGBA) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := img.Image.Bounds()
	if s.buf == nil || s.buf.Rect.Dx() != b.Dx() || s.buf.Rect.Dy() != b.Dy() {
		s.buf = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(s.buf, s.buf.Rect, img.Image, b.Min, draw.Src)

	if !img.CORSClean {
		return ErrTaintedCanvas
	}
	return fn(s.buf)
}

// HTTPLoader loads images over HTTP(S), from data: URLs and from local files.
// Cross-origin HTTP responses are clean only when the server grants the
// page origin through Access-Control-Allow-Origin.
type HTTPLoader struct {
	PageOrigin string
	client     *http.Client
	processor  *processing.Processor
}

// NewHTTPLoader creates a loader for pages served from pageOrigin
func NewHTTPLoader(pageOrigin string, processor *processing.Processor) *HTTPLoader {
	return &HTTPLoader{
		PageOrigin: pageOrigin,
		client:     &http.Client{Timeout: 30 * time.Second},
		processor:  processor,
	}
}

// Load implements ImageLoader
func (l *HTTPLoader) Load(ctx context.Context, src string, crossOrigin bool) (LoadedImage, error) {
	switch {
	case strings.HasPrefix(src, "data:"):
		img, err := l.decodeDataURL(src)
		return LoadedImage{Image: img, CORSClean: true}, err
	case strings.HasPrefix(src, "blob:"):
		return LoadedImage{}, fmt.Errorf("blob sources cannot be loaded outside the page: %s", src)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return l.loadHTTP(ctx, src, crossOrigin)
	default:
		img, err := l.processor.LoadImage(src)
		if err != nil {
			return LoadedImage{}, fmt.Errorf("failed to load %s: %w", src, err)
		}
		return LoadedImage{Image: img, CORSClean: true}, nil
	}
}

func (l *HTTPLoader) loadHTTP(ctx context.Context, src string, crossOrigin bool) (LoadedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return LoadedImage{}, fmt.Errorf("failed to create request: %w", err)
	}
	sameOrigin := SameOrigin(src, l.PageOrigin)
	if crossOrigin && !sameOrigin && l.PageOrigin != "" {
		req.Header.Set("Origin", l.PageOrigin)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return LoadedImage{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LoadedImage{}, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return LoadedImage{}, fmt.Errorf("failed to read image data: %w", err)
	}
	img, err := l.processor.DecodeBytes(data)
	if err != nil {
		return LoadedImage{}, err
	}

	clean := sameOrigin
	if crossOrigin && !clean {
		allowed := resp.Header.Get("Access-Control-Allow-Origin")
		clean = allowed == "*" || (allowed != "" && allowed == l.PageOrigin)
	}
	return LoadedImage{Image: img, CORSClean: clean}, nil
}

func (l *HTTPLoader) decodeDataURL(src string) (image.Image, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(src, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("unsupported data URL encoding")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid data URL payload: %w", err)
	}
	return l.processor.DecodeBytes(data)
}

// SameOrigin reports whether src shares scheme, host and port with origin
func SameOrigin(src, origin string) bool {
	if origin == "" {
		return false
	}
	a, err := url.Parse(src)
	if err != nil {
		return false
	}
	b, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return a.Scheme == b.Scheme && strings.EqualFold(a.Host, b.Host)
}
