package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/version"
)

// DefaultServerURL is where llama.cpp's server listens by default
const DefaultServerURL = "http://localhost:8080/v1"

// OpenAICompat drives a server that speaks the OpenAI chat completions API,
// such as llama.cpp's llama-server serving a GGUF file. The server owns the
// weights; Load checks that it serves the requested model.
type OpenAICompat struct {
	baseURL string
	apiKey  string
	client  *http.Client
	model   string
}

// NewOpenAICompat creates a driver for baseURL (including the /v1 prefix)
func NewOpenAICompat(baseURL, apiKey string, timeout time.Duration) *OpenAICompat {
	if baseURL == "" {
		baseURL = DefaultServerURL
	}
	return &OpenAICompat{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model             string    `json:"model"`
	Messages          []Message `json:"messages"`
	Temperature       float64   `json:"temperature"`
	MaxTokens         int       `json:"max_tokens,omitempty"`
	TopP              float64   `json:"top_p,omitempty"`
	TopK              int       `json:"top_k,omitempty"`
	RepetitionPenalty float64   `json:"repeat_penalty,omitempty"`
	Stream            bool      `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Probe lists the served models
func (p *OpenAICompat) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := p.models(ctx)
	return err
}

// Load verifies the server is up. A single-model server reports whatever
// name its file has, so a name mismatch is not an error.
func (p *OpenAICompat) Load(ctx context.Context, profile domain.ModelProfile) error {
	if _, err := p.models(ctx); err != nil {
		return err
	}
	p.model = profile.BackendModel()
	return nil
}

// Generate runs one chat completion
func (p *OpenAICompat) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	if p.model == "" {
		return "", errors.NewModelNotLoadedError()
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:             p.model,
		Messages:          messages,
		Temperature:       opts.temperature(),
		MaxTokens:         opts.MaxNewTokens,
		TopP:              opts.TopP,
		TopK:              opts.TopK,
		RepetitionPenalty: opts.RepetitionPenalty,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.NewBackendUnavailableError("gguf", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeBackendResponse, "read response", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp chatResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != nil {
			return "", errors.New(errors.ErrCodeBackendResponse, "server error: "+errResp.Error.Message)
		}
		return "", errors.New(errors.ErrCodeBackendResponse,
			fmt.Sprintf("http error %d: %s", httpResp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", errors.Wrap(errors.ErrCodeBackendResponse, "unmarshal response", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Unload forgets the model; the server process keeps running
func (p *OpenAICompat) Unload(context.Context) error {
	p.model = ""
	return nil
}

func (p *OpenAICompat) models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	p.setHeaders(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.NewBackendUnavailableError("gguf", err).
			WithSuggestion("Start llama-server with the GGUF file, e.g. 'llama-server -m model.gguf --port 8080'")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewBackendUnavailableError("gguf", fmt.Errorf("models returned status %d", resp.StatusCode))
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendResponse, "decode /models", err)
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (p *OpenAICompat) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", version.UserAgent())
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
