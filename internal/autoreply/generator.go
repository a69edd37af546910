package autoreply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campuschat/internal/transport"
)

const defaultGeneratorTimeout = 20 * time.Second

// HTTPGenerator implements domain.ReplyGenerator against the external
// text-generation service.
type HTTPGenerator struct {
	apiBase string
	client  *http.Client
	logger  *slog.Logger
}

type GeneratorConfig struct {
	APIBase string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewHTTPGenerator(cfg GeneratorConfig) *HTTPGenerator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGeneratorTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPGenerator{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		client:  transport.SharedHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

type generateRequest struct {
	Prompt  string `json:"promptText"`
	Context string `json:"contextLabel"`
}

type generateResponse struct {
	Text string `json:"text"`
}

// Generate requests reply text for a prompt. Transient server errors are
// retried a couple of times; everything else comes back as an error for the
// trigger to swallow.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt, contextLabel string) (string, error) {
	body, err := json.Marshal(generateRequest{Prompt: prompt, Context: contextLabel})
	if err != nil {
		return "", fmt.Errorf("encode generation request: %w", err)
	}

	resp, err := doWithRetry(ctx, g.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiBase+"/generate", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, g.logger)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generator returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generation response: %w", err)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("generator returned empty text")
	}
	return out.Text, nil
}
