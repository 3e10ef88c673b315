package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 20, B: 40, A: 255})
		}
	}
	return img
}

func TestDownscale(t *testing.T) {
	tests := []struct {
		name         string
		w, h, max    int
		wantW, wantH int
	}{
		{"landscape", 4000, 3000, 1600, 1600, 1200},
		{"portrait", 1000, 3000, 1600, 533, 1600},
		{"within bounds", 800, 600, 1600, 800, 600},
		{"square", 2000, 2000, 1000, 1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image.NewRGBA(image.Rect(0, 0, tt.w, tt.h))
			out := Downscale(img, tt.max)
			b := out.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Fatalf("got %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
			if b.Dx() > tt.max || b.Dy() > tt.max {
				t.Fatalf("longest edge exceeds %d", tt.max)
			}
			ratioIn := float64(tt.w) / float64(tt.h)
			ratioOut := float64(b.Dx()) / float64(b.Dy())
			if diff := ratioIn - ratioOut; diff > 0.01 || diff < -0.01 {
				t.Fatalf("aspect ratio drifted: %f vs %f", ratioIn, ratioOut)
			}
		})
	}
}

func TestPrepareUploadReencodesAsJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(300, 100)); err != nil {
		t.Fatal(err)
	}

	prepared, err := PrepareUpload(&buf, 150)
	if err != nil {
		t.Fatal(err)
	}
	if prepared.Format != "png" || prepared.Width != 150 || prepared.Height != 50 {
		t.Fatalf("unexpected prepared image %+v", prepared)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(prepared.JPEG))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if cfg.Width != 150 || cfg.Height != 50 {
		t.Fatalf("jpeg is %dx%d", cfg.Width, cfg.Height)
	}

	if _, err := PrepareUpload(bytes.NewReader([]byte("not an image")), 150); !errors.Is(err, ErrUnsupportedImage) {
		t.Fatalf("expected ErrUnsupportedImage, got %v", err)
	}
}

func TestVisionClientDetectText(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff}

	tests := []struct {
		name     string
		status   int
		response string
		want     string
		upstream bool
	}{
		{"full text", 200, `{"responses":[{"fullTextAnnotation":{"text":"Chateau Margaux\n2015"},"textAnnotations":[{"description":"ignored"}]}]}`, "Chateau Margaux\n2015", false},
		{"text annotations fallback", 200, `{"responses":[{"textAnnotations":[{"description":"Barolo"}]}]}`, "Barolo", false},
		{"no text", 200, `{"responses":[{}]}`, "", false},
		{"per image error", 200, `{"responses":[{"error":{"code":3,"message":"bad image data"}}]}`, "", true},
		{"bad key", 403, `{"error":{"code":403,"message":"API key not valid"}}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("key") != "k" {
					t.Errorf("missing api key in %s", r.URL)
				}
				var req annotateRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("decode: %v", err)
				}
				if len(req.Requests) != 1 || req.Requests[0].Image.Content != base64.StdEncoding.EncodeToString(payload) {
					t.Errorf("unexpected request %+v", req)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			client := NewVisionClient(srv.URL, "k", testLogger())
			got, err := client.DetectText(context.Background(), payload)

			var upstream *UpstreamError
			if tt.upstream {
				if !errors.As(err, &upstream) {
					t.Fatalf("expected UpstreamError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVisionClientHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewVisionClient(srv.URL, "k", testLogger())
	if _, err := client.DetectText(ctx, []byte{1}); err == nil {
		t.Fatal("cancelled context should abort the request")
	}
}

type fakeRecognizer struct {
	got []byte
}

func (f *fakeRecognizer) DetectText(ctx context.Context, jpeg []byte) (string, error) {
	f.got = jpeg
	return "Rioja Reserva", nil
}

func TestReaderReadLabel(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solidImage(40, 20)); err != nil {
		t.Fatal(err)
	}
	size := int64(buf.Len())

	rec := &fakeRecognizer{}
	text, err := NewReader(rec, 1600, testLogger()).ReadLabel(context.Background(), &buf, size)
	if err != nil || text != "Rioja Reserva" {
		t.Fatalf("ReadLabel = %q, %v", text, err)
	}
	if _, err := jpeg.DecodeConfig(bytes.NewReader(rec.got)); err != nil {
		t.Fatalf("recognizer did not receive a jpeg: %v", err)
	}
}
