package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/felixgeelhaar/cotsynth/internal/domain"
	"github.com/felixgeelhaar/cotsynth/internal/errors"
	"github.com/felixgeelhaar/cotsynth/internal/log"
)

// Worker drives an external process that hosts HuggingFace models. The
// process is started on first use and speaks one JSON object per line:
//
//	-> {"op":"load","repo":"Qwen/Qwen3-1.7B","quant":"4bit"}
//	<- {"ok":true}
//	-> {"op":"generate","messages":[...],"options":{...}}
//	<- {"ok":true,"text":"..."}
//	-> {"op":"unload"}
//	<- {"ok":true}
//
// A reply with "ok": false carries the failure in "error".
type Worker struct {
	command []string
	env     []string
	logger  *log.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	loaded bool
}

type workerRequest struct {
	Op       string    `json:"op"`
	Repo     string    `json:"repo,omitempty"`
	Quant    string    `json:"quant,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Options  *Options  `json:"options,omitempty"`
}

type workerReply struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// maxReplyBytes bounds one reply line
const maxReplyBytes = 16 << 20

// NewWorker creates a driver for command (program and arguments). env is
// appended to the current environment of the child.
func NewWorker(command []string, env []string, logger *log.Logger) *Worker {
	return &Worker{
		command: command,
		env:     env,
		logger:  log.OrDefault(logger).With("backend", "hf"),
	}
}

// Probe checks that the worker program exists
func (w *Worker) Probe(context.Context) error {
	if len(w.command) == 0 {
		return errors.NewBackendUnavailableError("hf", fmt.Errorf("no worker command configured")).
			WithSuggestion("Set backends.hf.command in the configuration")
	}
	if _, err := exec.LookPath(w.command[0]); err != nil {
		return errors.NewBackendUnavailableError("hf", fmt.Errorf("worker not found: %w", err))
	}
	return nil
}

// Load starts the worker if needed and asks it to load the model
func (w *Worker) Load(ctx context.Context, profile domain.ModelProfile) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.start(); err != nil {
		return err
	}

	repo := profile.HFRepo
	if repo == "" {
		repo = profile.BackendModel()
	}
	if _, err := w.call(ctx, workerRequest{Op: "load", Repo: repo, Quant: profile.Quant}); err != nil {
		return err
	}
	w.loaded = true
	return nil
}

// Generate runs one completion in the worker
func (w *Worker) Generate(ctx context.Context, messages []Message, opts Options) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.loaded {
		return "", errors.NewModelNotLoadedError()
	}
	opts.Temperature = opts.temperature()
	reply, err := w.call(ctx, workerRequest{Op: "generate", Messages: messages, Options: &opts})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply.Text), nil
}

// Unload frees the model; the process stays up for the next load
func (w *Worker) Unload(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.loaded {
		return nil
	}
	w.loaded = false
	_, err := w.call(ctx, workerRequest{Op: "unload"})
	return err
}

// Close stops the worker process
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stop()
}

func (w *Worker) start() error {
	if w.cmd != nil {
		return nil
	}
	if len(w.command) == 0 {
		return errors.NewBackendUnavailableError("hf", fmt.Errorf("no worker command configured"))
	}

	cmd := exec.Command(w.command[0], w.command[1:]...)
	cmd.Env = append(os.Environ(), w.env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return errors.NewBackendUnavailableError("hf", fmt.Errorf("failed to start worker: %w", err))
	}

	w.logger.Info("worker started", "command", strings.Join(w.command, " "), "pid", cmd.Process.Pid)
	w.cmd = cmd
	w.stdin = stdin
	w.stdout = bufio.NewReaderSize(stdout, 64<<10)
	return nil
}

func (w *Worker) stop() error {
	if w.cmd == nil {
		return nil
	}
	_ = w.stdin.Close()
	err := w.cmd.Wait()
	w.cmd, w.stdin, w.stdout = nil, nil, nil
	w.loaded = false
	if err != nil {
		return fmt.Errorf("worker exited: %w", err)
	}
	return nil
}

func (w *Worker) kill() {
	if w.cmd == nil {
		return
	}
	_ = w.cmd.Process.Kill()
	_ = w.stop()
}

// call does one request/reply round trip. A cancelled context kills the
// worker because the reply stream is no longer in step.
func (w *Worker) call(ctx context.Context, req workerRequest) (workerReply, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return workerReply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	type result struct {
		reply workerReply
		err   error
	}
	done := make(chan result, 1)
	stdin, stdout := w.stdin, w.stdout

	go func() {
		if _, err := stdin.Write(append(line, '\n')); err != nil {
			done <- result{err: errors.NewBackendUnavailableError("hf", err)}
			return
		}
		raw, err := readLine(stdout)
		if err != nil {
			done <- result{err: errors.NewBackendUnavailableError("hf", fmt.Errorf("read reply: %w", err))}
			return
		}
		var reply workerReply
		if err := json.Unmarshal(raw, &reply); err != nil {
			done <- result{err: errors.Wrap(errors.ErrCodeBackendResponse, "failed to parse worker reply", err)}
			return
		}
		done <- result{reply: reply}
	}()

	select {
	case <-ctx.Done():
		w.logger.Warn("cancelled mid-request, stopping worker", "op", req.Op)
		w.kill()
		return workerReply{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if errors.HasCode(r.err, errors.ErrCodeBackendUnavailable) {
				w.kill()
			}
			return workerReply{}, r.err
		}
		if !r.reply.OK {
			return workerReply{}, errors.New(errors.ErrCodeBackendResponse,
				fmt.Sprintf("worker %s failed: %s", req.Op, r.reply.Error))
		}
		return r.reply, nil
	}
}

func readLine(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		buf = append(buf, chunk...)
		if len(buf) > maxReplyBytes {
			return nil, fmt.Errorf("reply exceeds %d bytes", maxReplyBytes)
		}
		if !isPrefix {
			return buf, nil
		}
	}
}
