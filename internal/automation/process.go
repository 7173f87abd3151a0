package automation

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// ProcessEngine launches a helper executable per session and speaks a
// line-delimited JSON protocol over its stdio. The helper wraps whatever
// spreadsheet application is installed on the host; one process equals one
// engine instance, so a crashed helper can never poison another session.
type ProcessEngine struct {
	// Command is the helper executable. An empty command means no
	// automation engine is available on this host.
	Command string
	Args    []string
	Log     *slog.Logger
}

type bridgeRequest struct {
	Op        string  `json:"op"`
	Location  string  `json:"location,omitempty"`
	ReadWrite bool    `json:"read_write,omitempty"`
	Sheet     string  `json:"sheet,omitempty"`
	Cell      string  `json:"cell,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

type bridgeResponse struct {
	OK    bool    `json:"ok"`
	Value float64 `json:"value"`
	Found bool    `json:"found"`
	Error string  `json:"error"`
}

// Open starts a helper process and opens the workbook at location.
func (e *ProcessEngine) Open(ctx context.Context, location string, readWrite bool) (Session, error) {
	if e.Command == "" {
		return nil, &Error{Op: "open", Err: errors.New("no automation command configured")}
	}

	log := e.Log
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &Error{Op: "open", Err: fmt.Errorf("start %s: %w", e.Command, err)}
	}

	s := &processSession{
		cmd:      cmd,
		stdin:    stdin,
		enc:      json.NewEncoder(stdin),
		dec:      json.NewDecoder(bufio.NewReader(stdout)),
		readOnly: !readWrite,
		log:      log,
	}

	if _, err := s.call(ctx, bridgeRequest{Op: "open", Location: location, ReadWrite: readWrite}); err != nil {
		s.release()
		return nil, err
	}
	log.Debug("automation session opened", "location", location, "read_write", readWrite)
	return s, nil
}

type processSession struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	enc      *json.Encoder
	dec      *json.Decoder
	readOnly bool
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (s *processSession) call(ctx context.Context, req bridgeRequest) (bridgeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bridgeResponse{}, &Error{Op: req.Op, Err: errors.New("session already closed")}
	}
	if err := ctx.Err(); err != nil {
		return bridgeResponse{}, &Error{Op: req.Op, Err: err}
	}

	if err := s.enc.Encode(req); err != nil {
		return bridgeResponse{}, &Error{Op: req.Op, Err: err}
	}
	var resp bridgeResponse
	if err := s.dec.Decode(&resp); err != nil {
		return bridgeResponse{}, &Error{Op: req.Op, Err: err}
	}
	if !resp.OK {
		return bridgeResponse{}, &Error{Op: req.Op, Err: errors.New(resp.Error)}
	}
	return resp, nil
}

func (s *processSession) HasSheet(ctx context.Context, name string) (bool, error) {
	resp, err := s.call(ctx, bridgeRequest{Op: "has_sheet", Sheet: name})
	if err != nil {
		return false, err
	}
	return resp.Found, nil
}

func (s *processSession) SetNumber(ctx context.Context, sheet, cell string, value float64) error {
	_, err := s.call(ctx, bridgeRequest{Op: "set", Sheet: sheet, Cell: cell, Value: value})
	return err
}

func (s *processSession) Number(ctx context.Context, sheet, cell string) (float64, error) {
	resp, err := s.call(ctx, bridgeRequest{Op: "get", Sheet: sheet, Cell: cell})
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

func (s *processSession) Recalculate(ctx context.Context) error {
	_, err := s.call(ctx, bridgeRequest{Op: "calc"})
	return err
}

func (s *processSession) ReadOnly() bool { return s.readOnly }

// Close asks the helper to close the workbook, then reaps the process.
// Errors from the close handshake are logged, not returned: the process is
// torn down regardless, which is what guarantees no session leak.
func (s *processSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if err := s.enc.Encode(bridgeRequest{Op: "close"}); err != nil {
		s.log.Debug("automation close handshake failed", "error", err)
	}
	s.mu.Unlock()

	s.release()
	return nil
}

func (s *processSession) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		s.log.Debug("automation helper exited with error", "error", err)
	}
}
