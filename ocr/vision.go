package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

var ErrNotConfigured = errors.New("vision api key not configured")

// Recognizer extracts text from a JPEG image.
type Recognizer interface {
	DetectText(ctx context.Context, jpeg []byte) (string, error)
}

// UpstreamError is a failure reported by the vision service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return "vision request failed: " + e.Message
	}
	return fmt.Sprintf("vision request failed with status %d: %s", e.StatusCode, e.Message)
}

type VisionClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewVisionClient(endpoint, apiKey string, logger *slog.Logger) *VisionClient {
	return &VisionClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type annotateRequest struct {
	Requests []annotateImageRequest `json:"requests"`
}

type annotateImageRequest struct {
	Image    annotateImage     `json:"image"`
	Features []annotateFeature `json:"features"`
}

type annotateImage struct {
	Content string `json:"content"`
}

type annotateFeature struct {
	Type string `json:"type"`
}

type annotateResponse struct {
	Responses []struct {
		FullTextAnnotation *struct {
			Text string `json:"text"`
		} `json:"fullTextAnnotation"`
		TextAnnotations []struct {
			Description string `json:"description"`
		} `json:"textAnnotations"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"responses"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// DetectText sends the image for text detection. The request is bound to
// ctx, so a caller that goes away cancels the upstream call.
func (c *VisionClient) DetectText(ctx context.Context, img []byte) (string, error) {
	if c.apiKey == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(annotateRequest{
		Requests: []annotateImageRequest{{
			Image:    annotateImage{Content: base64.StdEncoding.EncodeToString(img)},
			Features: []annotateFeature{{Type: "TEXT_DETECTION"}},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode vision request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?key="+c.apiKey, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build vision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &UpstreamError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	c.logger.Debug("vision response",
		"status", resp.StatusCode,
		"request_size", humanize.Bytes(uint64(len(body))),
		"response_size", humanize.Bytes(uint64(len(raw))),
		"duration", time.Since(start),
	)

	var parsed annotateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return "", &UpstreamError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: "malformed response"}
	}
	if parsed.Error != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: parsed.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if len(parsed.Responses) == 0 {
		return "", nil
	}

	first := parsed.Responses[0]
	if first.Error != nil {
		return "", &UpstreamError{StatusCode: resp.StatusCode, Message: first.Error.Message}
	}
	if first.FullTextAnnotation != nil && first.FullTextAnnotation.Text != "" {
		return first.FullTextAnnotation.Text, nil
	}
	if len(first.TextAnnotations) > 0 {
		return first.TextAnnotations[0].Description, nil
	}
	return "", nil
}
