package correction

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/menta2k/vision-correct/pkg/processing"
)

func TestHTTPLoader(t *testing.T) {
	var encoded bytes.Buffer
	png.Encode(&encoded, createFrame(80))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shared.png" && r.Header.Get("Origin") != "" {
			w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(encoded.Bytes())
	}))
	defer srv.Close()

	ctx := context.Background()
	proc := processing.NewProcessor()

	sameOrigin := NewHTTPLoader(srv.URL, proc)
	loaded, err := sameOrigin.Load(ctx, srv.URL+"/private.png", true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.CORSClean {
		t.Error("Same-origin image should be clean")
	}

	crossOrigin := NewHTTPLoader("https://reader.example.com", proc)
	loaded, err = crossOrigin.Load(ctx, srv.URL+"/shared.png", true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.CORSClean {
		t.Error("Expected CORS grant to make the image clean")
	}

	loaded, err = crossOrigin.Load(ctx, srv.URL+"/private.png", true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.CORSClean {
		t.Error("Cross-origin image without a grant should be tainted")
	}
}

func TestHTTPLoaderDataURL(t *testing.T) {
	var encoded bytes.Buffer
	png.Encode(&encoded, createFrame(80))
	src := "data:image/png;base64," + base64.StdEncoding.EncodeToString(encoded.Bytes())

	loader := NewHTTPLoader("", processing.NewProcessor())
	loaded, err := loader.Load(context.Background(), src, true)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.CORSClean || loaded.Image.Bounds().Dx() != 16 {
		t.Errorf("Unexpected data URL result: clean=%v bounds=%v", loaded.CORSClean, loaded.Image.Bounds())
	}

	if _, err := loader.Load(context.Background(), "data:text/plain,hello", true); err == nil {
		t.Error("Expected error for non-base64 data URL")
	}
	if _, err := loader.Load(context.Background(), "blob:https://x/1", true); err == nil {
		t.Error("Expected error for blob source")
	}
}

func TestSameOrigin(t *testing.T) {
	if !SameOrigin("https://a.example.com/x.png", "https://a.example.com") {
		t.Error("Expected same origin")
	}
	if SameOrigin("https://a.example.com:8443/x.png", "https://a.example.com") {
		t.Error("Different port is a different origin")
	}
	if SameOrigin("https://a.example.com/x.png", "") {
		t.Error("Empty origin never matches")
	}
}
