package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Sentinel errors for the HTTP inpainting backend
var (
	// ErrNotRunning is returned when nothing is listening at the endpoint
	ErrNotRunning = errors.New("inpainting service not running")
	// ErrConnectionTimeout is returned when a request times out
	ErrConnectionTimeout = errors.New("inpainting service timeout")
	// ErrRequestFailed is returned for non-2xx responses
	ErrRequestFailed = errors.New("inpainting request failed")
	// ErrConnectionFailed is returned for other transport failures
	ErrConnectionFailed = errors.New("inpainting connection failed")
)

// HTTP endpoints served by the inpainting service.
const (
	EndpointHealth  = "/healthz"
	EndpointInpaint = "/inpaint"
)

// DefaultHTTPTimeout bounds a single inpainting call.
const DefaultHTTPTimeout = 5 * time.Minute

// inpaintRequest is the body POSTed to /inpaint. Images are base64 PNGs.
type inpaintRequest struct {
	Prompt            string  `json:"prompt"`
	Image             string  `json:"image"`
	MaskImage         string  `json:"mask_image"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

type inpaintResponse struct {
	Image string `json:"image"`
}

// HTTPInpainter calls a remote inpainting service.
type HTTPInpainter struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPInpainter creates a backend for the service at endpoint
// (e.g. "http://localhost:7860"). A zero timeout selects DefaultHTTPTimeout.
func NewHTTPInpainter(endpoint string, timeout time.Duration) *HTTPInpainter {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPInpainter{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the configured service URL.
func (c *HTTPInpainter) Endpoint() string {
	return c.endpoint
}

// Load verifies the service is reachable and healthy.
func (c *HTTPInpainter) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+EndpointHealth, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := classifyError(err)
		if errors.Is(classified, ErrNotRunning) {
			return fmt.Errorf("%w at %s", ErrNotRunning, c.endpoint)
		}
		return classified
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// Inpaint implements Inpainter.
func (c *HTTPInpainter) Inpaint(ctx context.Context, r Request) (image.Image, error) {
	imageB64, err := encodePNG(r.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	maskB64, err := encodePNG(r.Mask)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mask: %w", err)
	}

	body, err := json.Marshal(inpaintRequest{
		Prompt:            r.Prompt,
		Image:             imageB64,
		MaskImage:         maskB64,
		NumInferenceSteps: r.Steps,
		GuidanceScale:     r.Guidance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+EndpointInpaint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out inpaintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response image: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode response image: %w", err)
	}
	return img, nil
}

func encodePNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// classifyError maps transport errors onto the package sentinels.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionTimeout
	}
	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectionTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrNotRunning
	}

	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}
