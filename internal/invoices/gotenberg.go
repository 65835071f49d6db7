package invoices

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	gotenbergHTMLRoute  = "/forms/chromium/convert/html"
	maxRenderedPDFBytes = 20 << 20
)

// GotenbergRenderer converts the HTML invoice to PDF through a Gotenberg (headless Chromium) service.
type GotenbergRenderer struct {
	endpoint string
	client   *http.Client
	html     *HTMLDocument
}

// NewGotenbergRenderer builds a renderer for the service at baseURL.
func NewGotenbergRenderer(baseURL string, timeout time.Duration, client *http.Client) (*GotenbergRenderer, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gotenberg renderer: base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &GotenbergRenderer{
		endpoint: baseURL + gotenbergHTMLRoute,
		client:   client,
		html:     NewHTMLDocument(),
	}, nil
}

// Render posts the invoice HTML and returns the converted PDF.
func (r *GotenbergRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	page, err := r.html.Render(doc)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, fmt.Errorf("gotenberg renderer: build form: %w", err)
	}
	if _, err := part.Write(page); err != nil {
		return nil, fmt.Errorf("gotenberg renderer: build form: %w", err)
	}
	for key, value := range map[string]string{
		"paperWidth":      "8.27",
		"paperHeight":     "11.7",
		"marginTop":       "0.59",
		"marginBottom":    "0.59",
		"marginLeft":      "0.59",
		"marginRight":     "0.59",
		"printBackground": "true",
	} {
		if err := form.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("gotenberg renderer: build form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("gotenberg renderer: build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("gotenberg renderer: new request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Gotenberg-Output-Filename", strings.TrimSuffix(doc.FileName(), ".pdf"))

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gotenberg renderer: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gotenberg renderer: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderedPDFBytes))
	if err != nil {
		return nil, fmt.Errorf("gotenberg renderer: read body: %w", err)
	}
	return pdf, nil
}
