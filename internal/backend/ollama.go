package backend

import (
	"bufio"
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
	"github.com/felixgeelhaar/cotsynth/internal/log"
	"github.com/felixgeelhaar/cotsynth/internal/version"
)

// DefaultOllamaURL is used when neither config nor OLLAMA_HOST set one
const DefaultOllamaURL = "http://localhost:11434"

const (
	probeTimeout  = 5 * time.Second
	warmupTimeout = 120 * time.Second
)

// Ollama drives a local Ollama server. Ollama owns the weights, so loading
// means making sure the model is pulled and warm, and unloading asks the
// server to evict it.
type Ollama struct {
	baseURL string
	client  *http.Client
	// pull has no overall timeout; downloads can take hours
	pull   *http.Client
	logger *log.Logger

	available bool
	model     string
}

// NewOllama creates an Ollama driver. loadTimeout bounds the wait for
// response headers, which is where Ollama spends model load time.
func NewOllama(baseURL string, timeout, loadTimeout time.Duration, logger *log.Logger) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if loadTimeout > 0 {
		transport.ResponseHeaderTimeout = loadTimeout
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: transport, Timeout: timeout},
		pull:    &http.Client{},
		logger:  log.OrDefault(logger).With("backend", "ollama"),
	}
}

type ollamaOptions struct {
	NumPredict    int     `json:"num_predict"`
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	TopK          int     `json:"top_k,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

type ollamaPullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Completed int64  `json:"completed"`
	Error     string `json:"error,omitempty"`
}

// Probe checks that the server answers /api/tags
func (o *Ollama) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := o.tags(ctx)
	return err
}

// Load pulls the model when missing and warms it up
func (o *Ollama) Load(ctx context.Context, profile domain.ModelProfile) error {
	// a server that answered once is not probed again
	if !o.available {
		o.available = o.Probe(ctx) == nil
	}
	if !o.available {
		return errors.NewBackendUnavailableError("ollama", fmt.Errorf("no answer from %s", o.baseURL)).
			WithSuggestion("Install from https://ollama.com and run 'ollama serve'")
	}

	name := profile.BackendModel()
	names, err := o.tags(ctx)
	if err != nil {
		return err
	}
	if !hasOllamaModel(names, name) {
		if err := o.pullModel(ctx, name); err != nil {
			return err
		}
	}

	o.warmUp(ctx, name)
	o.model = name
	return nil
}

// Generate runs one non-streaming chat completion
func (o *Ollama) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	if o.model == "" {
		return "", errors.NewModelNotLoadedError()
	}

	req := ollamaChatRequest{
		Model:    o.model,
		Messages: messages,
		Stream:   false,
		Options: ollamaOptions{
			NumPredict:    opts.MaxNewTokens,
			Temperature:   opts.temperature(),
			TopP:          opts.TopP,
			TopK:          opts.TopK,
			RepeatPenalty: opts.RepetitionPenalty,
		},
	}

	var resp ollamaChatResponse
	if err := o.postJSON(ctx, o.client, "/api/chat", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", errors.New(errors.ErrCodeBackendResponse, "ollama error: "+resp.Error)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Unload asks the server to evict the model now
func (o *Ollama) Unload(ctx context.Context) error {
	if o.model == "" {
		return nil
	}
	name := o.model
	o.model = ""

	req := map[string]any{"model": name, "keep_alive": 0}
	if err := o.postJSON(ctx, o.client, "/api/generate", req, nil); err != nil {
		return fmt.Errorf("evict %s: %w", name, err)
	}
	return nil
}

func (o *Ollama) tags(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, errors.NewBackendUnavailableError("ollama", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewBackendUnavailableError("ollama", fmt.Errorf("bad status: %s", resp.Status))
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBackendResponse, "decode /api/tags", err)
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// hasOllamaModel matches with and without the tag suffix (":latest")
func hasOllamaModel(available []string, name string) bool {
	base := strings.SplitN(name, ":", 2)[0]
	for _, m := range available {
		if m == name || strings.SplitN(m, ":", 2)[0] == base {
			return true
		}
	}
	return false
}

func (o *Ollama) pullModel(ctx context.Context, name string) error {
	o.logger.Info("pulling model, this may download several GB", "model", name)

	body, err := json.Marshal(map[string]any{"name": name, "stream": true})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := o.pull.Do(httpReq)
	if err != nil {
		return errors.Wrap(errors.ErrCodeModelPullFailed, "pull "+name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.New(errors.ErrCodeModelPullFailed,
			fmt.Sprintf("pull %s: http %d: %s", name, resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	lastStatus := ""
	lastPct := -1
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var p ollamaPullProgress
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			// partial or garbage line
			continue
		}
		if p.Error != "" {
			return errors.New(errors.ErrCodeModelPullFailed, fmt.Sprintf("pull %s: %s", name, p.Error))
		}

		pct := -1
		if p.Total > 0 {
			pct = int(p.Completed * 100 / p.Total)
		}
		// log on status change and every 10%
		if p.Status != lastStatus || (pct >= 0 && pct/10 != lastPct/10) {
			o.logger.Info("pull progress", "model", name, "status", p.Status, "percent", pct)
			lastStatus, lastPct = p.Status, pct
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeModelPullFailed, "read pull stream", err)
	}
	return nil
}

// warmUp loads the weights into memory with a one-token request. Failure is
// not fatal; the first real request will load the model instead.
func (o *Ollama) warmUp(ctx context.Context, name string) {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()

	req := ollamaChatRequest{
		Model:    name,
		Messages: []Message{User("hi")},
		Options:  ollamaOptions{NumPredict: 1},
	}
	if err := o.postJSON(ctx, o.client, "/api/chat", req, nil); err != nil {
		o.logger.WithError(err).Warn("warm-up failed", "model", name)
	}
}

func (o *Ollama) postJSON(ctx context.Context, client *http.Client, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.NewBackendUnavailableError("ollama", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeBackendResponse, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return errors.New(errors.ErrCodeBackendResponse, "ollama error: "+errResp.Error)
		}
		return errors.New(errors.ErrCodeBackendResponse,
			fmt.Sprintf("http error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.Wrap(errors.ErrCodeBackendResponse, "unmarshal response", err)
	}
	return nil
}
