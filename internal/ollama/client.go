// Package ollama talks to the embedding and model-management endpoints of a
// local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"
)

const (
	probeTimeout = 2 * time.Second
	listTimeout  = 10 * time.Second
)

// Client is an HTTP client for one Ollama instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a Client for baseURL. A trailing slash is ignored.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

// StatusError is returned when Ollama answers with a non-200 status.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
}

type tagsResponse struct {
	Models []modelEntry `json:"models"`
}

type modelEntry struct {
	Name string `json:"name"`
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// PullProgress is one line of the streamed /api/pull response.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Input holds a single string or a list of strings.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// send issues a request against endpoint and returns the open response when
// the status is 200. The caller closes the body.
func (c *Client) send(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", endpoint, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Endpoint: endpoint, Code: resp.StatusCode}
	}
	return resp, nil
}

// call is send followed by decoding a single JSON document into out.
func (c *Client) call(ctx context.Context, method, endpoint string, payload, out any) error {
	resp, err := c.send(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", endpoint, err)
	}
	return nil
}

// IsRunning probes /api/tags with a short timeout.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := c.send(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// ListModels returns the names of locally available models.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	var tags tagsResponse
	if err := c.call(ctx, http.MethodGet, "/api/tags", nil, &tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether name is available locally. An untagged name
// matches any tag of that model.
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(models, func(m string) bool {
		base, _, _ := strings.Cut(m, ":")
		return m == name || base == name
	})
}

// PullModel downloads name and blocks until the progress stream ends.
// onProgress may be nil.
func (c *Client) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	resp, err := c.send(ctx, http.MethodPost, "/api/pull", pullRequest{Name: name, Stream: true})
	if err != nil {
		return fmt.Errorf("pull %s: %w", name, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pull %s: reading progress: %w", name, err)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
}

// Embed returns the embedding of text under model.
func (c *Client) Embed(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := c.embed(ctx, model, text)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds texts in one request; the result is index-aligned.
func (c *Client) EmbedMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := c.embed(ctx, model, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embed: got %d embeddings for %d inputs", len(vecs), len(texts))
	}
	return vecs, nil
}

func (c *Client) embed(ctx context.Context, model string, input any) ([][]float32, error) {
	var res embedResponse
	if err := c.call(ctx, http.MethodPost, "/api/embed", embedRequest{Model: model, Input: input}, &res); err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 {
		return nil, errors.New("embed: empty embeddings array")
	}
	return res.Embeddings, nil
}
