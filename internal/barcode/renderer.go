package barcode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Renderer wraps the external barcode-image service.
type Renderer struct {
	baseURL    string
	httpClient *http.Client
}

// NewRenderer constructs a renderer client. The base URL is injected here
// instead of read from ambient configuration inside call sites.
func NewRenderer(baseURL string) *Renderer {
	return &Renderer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Ping checks if the remote renderer is available.
func (c *Renderer) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("renderer returned status %d", resp.StatusCode)
	}
	return nil
}

type renderRequest struct {
	Symbology   string `json:"symbology"`
	Text        string `json:"text"`
	Scale       int    `json:"scale"`
	Height      int    `json:"height"`
	IncludeText bool   `json:"include_text"`
}

// Render converts a code into a Code 128 PNG image.
func (c *Renderer) Render(ctx context.Context, code string) ([]byte, error) {
	payload, err := json.Marshal(renderRequest{
		Symbology:   "code128",
		Text:        code,
		Scale:       3,
		Height:      10,
		IncludeText: true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/render", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("render failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
