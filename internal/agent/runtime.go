// ABOUTME: Runtime interface and CLI subprocess implementation
// ABOUTME: Spawns the external agent executable once per turn and streams its events

package agent

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// TransportError indicates a failure establishing or reading the runtime's
// event stream. It aborts the turn; semantic failures reported inside the
// stream do not.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TurnRequest carries everything the runtime needs for one turn.
type TurnRequest struct {
	Prompt          string
	SystemPrompt    string
	AllowedTools    []string
	MaxTurns        int
	PermissionMode  string
	ResumeSessionID string // empty starts a fresh agent-side context
}

// Runtime drives one conversational turn against the external agent and
// yields its ordered event stream. The returned channel is closed when the
// turn ends; a stream failure is delivered as a final EventStreamError.
type Runtime interface {
	StartTurn(ctx context.Context, req *TurnRequest) (<-chan *Event, error)
}

// CLIRuntimeConfig configures the subprocess runtime.
type CLIRuntimeConfig struct {
	Command        string   // agent executable
	Args           []string // extra args prepended before turn flags
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// CLIRuntime invokes the external agent CLI once per turn, requesting
// stream-json output (one JSON event per line) on stdout.
type CLIRuntime struct {
	cfg    CLIRuntimeConfig
	logger *slog.Logger
}

// NewCLIRuntime creates a subprocess-backed runtime.
func NewCLIRuntime(cfg CLIRuntimeConfig, logger *slog.Logger) *CLIRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	return &CLIRuntime{
		cfg:    cfg,
		logger: logger.With("component", "agent-runtime"),
	}
}

// StartTurn spawns the agent process and returns its event stream.
// Establishment failures return a *TransportError directly; failures while
// reading surface as an EventStreamError on the channel.
func (r *CLIRuntime) StartTurn(ctx context.Context, req *TurnRequest) (<-chan *Event, error) {
	if req.Prompt == "" {
		return nil, &TransportError{Op: "starting turn", Err: fmt.Errorf("empty prompt")}
	}

	// The request timeout bounds the whole turn, including tool calls.
	// Cancelled when the reader goroutine finishes.
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.RequestTimeout)

	args := append([]string{}, r.cfg.Args...)
	args = append(args,
		"--output-format", "stream-json",
		"--max-turns", strconv.Itoa(req.MaxTurns),
		"--permission-mode", req.PermissionMode,
	)
	if req.SystemPrompt != "" {
		args = append(args, "--system-prompt", req.SystemPrompt)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.AllowedTools, ","))
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	args = append(args, "--print", req.Prompt)

	cmd := exec.CommandContext(runCtx, r.cfg.Command, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &TransportError{Op: "opening runtime stdout", Err: err}
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &TransportError{Op: "starting runtime process", Err: err}
	}

	r.logger.Debug("runtime turn started",
		"command", r.cfg.Command,
		"max_turns", req.MaxTurns,
		"resume", req.ResumeSessionID != "")

	ch := make(chan *Event, 16)
	go r.readEvents(cancel, cmd, stdout, ch)
	return ch, nil
}

// readEvents consumes the process's stdout line by line and forwards decoded
// events. It owns process teardown and closes the channel when done.
func (r *CLIRuntime) readEvents(cancel context.CancelFunc, cmd *exec.Cmd, stdout io.Reader, ch chan<- *Event) {
	defer close(ch)
	defer cancel()

	// Kill the process if it produces no output within the connect window
	connectTimer := time.AfterFunc(r.cfg.ConnectTimeout, cancel)
	firstLine := true

	sawResult := false
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		if firstLine {
			connectTimer.Stop()
			firstLine = false
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		events, err := decodeEvents(line)
		if err != nil {
			r.logger.Warn("undecodable runtime event", "error", err)
			continue
		}

		for _, ev := range events {
			if ev.Kind == EventResult {
				sawResult = true
			}
			ch <- ev
		}
	}
	connectTimer.Stop()

	if err := scanner.Err(); err != nil {
		ch <- &Event{Kind: EventStreamError, Err: fmt.Errorf("reading runtime stream: %w", err)}
		_ = cmd.Wait()
		return
	}

	if err := cmd.Wait(); err != nil && !sawResult {
		// The process died before reporting a result: transport failure
		ch <- &Event{Kind: EventStreamError, Err: fmt.Errorf("runtime process exited: %w", err)}
	}
}
