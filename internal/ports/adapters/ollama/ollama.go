// Package ollama adapts a local Ollama server to the provider port for
// offline inference.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shortreel/shortreel/internal/ports"
)

type Adapter struct {
	model   string
	baseURL string
	client  *http.Client
}

func New(model, baseURL string) *Adapter {
	return &Adapter{
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		client:  &http.Client{},
	}
}

func (a *Adapter) Name() string { return "ollama" }

func (a *Adapter) Capabilities() []ports.Capability {
	return []ports.Capability{
		ports.CapScoreHighlight,
		ports.CapScoreRelevance,
		ports.CapClassifyTopic,
		ports.CapClassifySentiment,
		ports.CapSummarize,
	}
}

func (a *Adapter) Infer(ctx context.Context, req ports.ModelRequest) (ports.ModelResult, error) {
	payload := map[string]any{
		"model":  a.model,
		"prompt": req.Input,
		"stream": false,
		"options": map[string]any{
			"temperature": 0,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return ports.ModelResult{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return ports.ModelResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ports.ModelResult{}, fmt.Errorf("ollama timeout (model=%s): %w", a.model, ports.ErrTransient)
		}
		return ports.ModelResult{}, fmt.Errorf("ollama request: %v: %w", err, ports.ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, _ := io.ReadAll(resp.Body)
		msg := truncate(string(rb), 400)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return ports.ModelResult{}, fmt.Errorf("ollama status %d: %s: %w", resp.StatusCode, msg, ports.ErrTransient)
		}
		return ports.ModelResult{}, fmt.Errorf("ollama status %d: %s", resp.StatusCode, msg)
	}

	var raw struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return ports.ModelResult{}, fmt.Errorf("decode ollama response: %w", err)
	}
	text := strings.TrimSpace(raw.Response)
	if text == "" {
		return ports.ModelResult{}, fmt.Errorf("ollama: empty response: %w", ports.ErrTransient)
	}
	return ports.ModelResult{Text: text}, nil
}

const defaultBaseURL = "http://127.0.0.1:11434"

func normalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/")
}

// ValidateBaseURL rejects anything but a plain absolute URL on a loopback or
// explicitly allowed host. An Ollama endpoint is local infrastructure; talking
// to an arbitrary remote host is almost always a config mistake.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	baseURL = normalizeBaseURL(baseURL)

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("invalid ollama base URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid ollama base URL %q: absolute URL with host is required", baseURL)
	}
	if u.User != nil {
		return fmt.Errorf("invalid ollama base URL %q: userinfo is not allowed", baseURL)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid ollama base URL %q: query and fragment are not allowed", baseURL)
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}
	for _, h := range allowedHosts {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return nil
		}
	}
	return fmt.Errorf("invalid ollama base URL %q: host %q is not local or allow-listed", baseURL, host)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
