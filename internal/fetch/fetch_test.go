package fetch

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func encodeTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestFetch_HTTP(t *testing.T) {
	data := encodeTestPNG(t, 64, 48)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	f := New(srv.URL, 2*time.Second)
	img, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("Unexpected image size %v", img.Bounds())
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(srv.URL, 2*time.Second)
	_, err := f.Fetch(context.Background())
	if err == nil {
		t.Fatal("Expected error for 404 response")
	}
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected fetch.Error, got %T", err)
	}
	if fetchErr.Timeout() {
		t.Error("A 404 is not a timeout")
	}
}

func TestFetch_Timeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	f := New(srv.URL, 50*time.Millisecond)
	_, err := f.Fetch(context.Background())
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("Expected fetch.Error, got %T", err)
	}
	if !fetchErr.Timeout() {
		t.Errorf("Expected a timeout error, got %v", err)
	}
}

func TestFetch_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not an image"))
	}))
	defer srv.Close()

	f := New(srv.URL, 2*time.Second)
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("Expected decode error")
	}
}

func TestFetch_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.png")
	if err := os.WriteFile(path, encodeTestPNG(t, 32, 32), 0644); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}

	f := New(path, time.Second)
	img, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if img.Bounds().Dx() != 32 {
		t.Errorf("Unexpected image size %v", img.Bounds())
	}

	f = New("file://"+path, time.Second)
	if _, err := f.Fetch(context.Background()); err != nil {
		t.Errorf("file:// fetch failed: %v", err)
	}
}
