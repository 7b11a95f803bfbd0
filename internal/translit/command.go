package translit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Request is one line written to the engine process.
type Request struct {
	Op       string `json:"op"`
	Raw      string `json:"raw"`
	Previous string `json:"previous,omitempty"`
}

// Response is one line read back from the engine process.
type Response struct {
	Composed string `json:"composed"`
	Raw      string `json:"raw,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Request operations.
const (
	OpProcess   = "process"
	OpBackspace = "backspace"
	OpPing      = "ping"
)

// maxLineBytes bounds one response line.
const maxLineBytes = 1 << 20

// ErrEngineExited reports that the engine process died mid-call.
var ErrEngineExited = errors.New("translit: engine process exited")

// CommandOptions tunes a Command backend.
type CommandOptions struct {
	// Env is appended to the parent environment.
	Env    []string
	Logger *slog.Logger

	// StopTimeout bounds how long Close waits after closing stdin.
	StopTimeout time.Duration
}

// Command runs the engine as a child process and exchanges one JSON
// request and one JSON response per line. Calls are serialized. A process
// that exits or misses a deadline is killed and restarted on the next call.
type Command struct {
	path string
	args []string
	opts CommandOptions

	mu     sync.Mutex
	proc   *engineProcess
	starts int
	closed bool
}

type engineProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan []byte
	done  chan struct{}
	err   error
}

// NewCommand returns a Command backend. The process starts lazily.
func NewCommand(path string, args []string, opts CommandOptions) *Command {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	return &Command{path: path, args: args, opts: opts}
}

// Name implements Backend.
func (c *Command) Name() string {
	return "command:" + c.path
}

// Starts returns how many times the process has been started.
func (c *Command) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}

// ProcessSequence implements ime.Transliterator.
func (c *Command) ProcessSequence(ctx context.Context, raw string) (string, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpProcess, Raw: raw})
	if err != nil {
		return "", err
	}
	return resp.Composed, nil
}

// HandleBackspace implements ime.Transliterator.
func (c *Command) HandleBackspace(ctx context.Context, previous, raw string) (string, string, error) {
	resp, err := c.roundTrip(ctx, Request{Op: OpBackspace, Previous: previous, Raw: raw})
	if err != nil {
		return "", "", err
	}
	return resp.Composed, resp.Raw, nil
}

// Ping starts the process if needed and exchanges a ping line.
func (c *Command) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, Request{Op: OpPing})
	return err
}

func (c *Command) roundTrip(ctx context.Context, req Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return Response{}, ErrClosed
	}

	p, err := c.ensureStarted()
	if err != nil {
		return Response{}, err
	}

	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := p.stdin.Write(append(line, '\n')); err != nil {
		c.discard(p)
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	select {
	case data, ok := <-p.lines:
		if !ok {
			c.discard(p)
			return Response{}, fmt.Errorf("%w: %v", ErrEngineExited, p.err)
		}
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			// the stream can no longer be trusted to stay in step
			c.discard(p)
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		if resp.Error != "" {
			return Response{}, fmt.Errorf("engine %s: %s", req.Op, resp.Error)
		}
		return resp, nil

	case <-ctx.Done():
		c.opts.Logger.Warn("engine call timed out, restarting process",
			"op", req.Op,
			"command", c.path,
		)
		c.discard(p)
		return Response{}, ctx.Err()
	}
}

func (c *Command) ensureStarted() (*engineProcess, error) {
	if c.proc != nil {
		select {
		case <-c.proc.done:
			c.discard(c.proc)
		default:
			return c.proc, nil
		}
	}

	cmd := exec.Command(c.path, c.args...)
	cmd.Env = append(os.Environ(), c.opts.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", c.path, err)
	}

	p := &engineProcess{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan []byte),
		done:  make(chan struct{}),
	}
	go p.readLoop(stdout)

	c.proc = p
	c.starts++
	c.opts.Logger.Info("engine process started",
		"command", c.path,
		"pid", cmd.Process.Pid,
		"starts", c.starts,
	)
	return p, nil
}

func (p *engineProcess) readLoop(stdout io.Reader) {
	defer close(p.done)
	defer close(p.lines)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		p.lines <- line
	}
	p.err = scanner.Err()
	if werr := p.cmd.Wait(); p.err == nil {
		p.err = werr
	}
}

// discard kills p and drops it so the next call starts a new process.
func (c *Command) discard(p *engineProcess) {
	if p == nil {
		return
	}
	p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	// unblock a reader parked on an unread line
	go func() {
		for range p.lines {
		}
	}()
	if c.proc == p {
		c.proc = nil
	}
}

// Close stops the engine process, waiting up to StopTimeout for it to
// exit after its stdin is closed.
func (c *Command) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	p := c.proc
	c.proc = nil
	if p == nil {
		return nil
	}

	p.stdin.Close()
	go func() {
		for range p.lines {
		}
	}()
	select {
	case <-p.done:
		return nil
	case <-time.After(c.opts.StopTimeout):
		_ = p.cmd.Process.Kill()
		<-p.done
		return fmt.Errorf("engine %s did not exit within %s", c.path, c.opts.StopTimeout)
	}
}
