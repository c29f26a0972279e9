// Package backend drives local inference servers. A Manager owns the one
// model that may be resident at a time and dispatches to a driver per
// backend kind.
package backend

import (
	"context"
	"time"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System builds a system turn
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user turn
func User(content string) Message { return Message{Role: "user", Content: content} }

// Options are the sampling parameters of one generate call
type Options struct {
	MaxNewTokens      int     `json:"max_new_tokens"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	TopK              int     `json:"top_k,omitempty"`
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty"`
}

// minTemperature keeps samplers that reject zero temperature working
const minTemperature = 0.01

func (o Options) temperature() float64 {
	if o.Temperature < minTemperature {
		return minTemperature
	}
	return o.Temperature
}

// Backend is an exclusive-load model handle.
//
// Load is a no-op when the model is already loaded. Generate blocks until
// the full completion is available. Unload is safe when nothing is loaded.
type Backend interface {
	Load(ctx context.Context, profile domain.ModelProfile) error
	Generate(ctx context.Context, messages []Message, opts Options) (string, error)
	Unload(ctx context.Context) error
}

// Prober is implemented by drivers that can check reachability without
// loading a model
type Prober interface {
	Probe(ctx context.Context) error
}

// LoadObserver is notified after every load attempt
type LoadObserver interface {
	ObserveLoad(model string, backend domain.BackendKind, d time.Duration, err error)
}
