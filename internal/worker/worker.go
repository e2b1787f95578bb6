// Package worker runs the Python model engines. Each worker owns one engine
// process and talks to it with a length-prefixed binary protocol: requests go
// to the child's stdin, replies come back on FD 3 so engine logs on stdout or
// stderr can never corrupt the stream.
//
//	request:  [u32 len][body]
//	reply:    [u32 len][u8 status][payload]
//
// status 0 carries a mode specific payload, status 1 carries [u32 len][message].
package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/aist/internal/utils" // Using the SafeCommand wrapper
)

var ErrTimeout = errors.New("engine did not answer in time")

const (
	statusOK    = 0
	statusError = 1
)

// Config describes how to start an engine process.
type Config struct {
	Python      string        // interpreter, defaults to python3
	Script      string        // engine entry point
	Args        []string      // extra engine arguments
	Debug       bool          // ask the engine to dump annotated frames
	ReadTimeout time.Duration // per frame; zero disables
}

// PythonWorker manages one engine process.
type PythonWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration
}

// NewPythonWorker starts the engine. The process is killed when ctx is cancelled.
func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	args := append([]string{"-u", cfg.Script}, cfg.Args...)
	if cfg.Debug {
		args = append(args, "--debug")
	}
	py := utils.NewSafeCommand(ctx, python, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &PythonWorker{
		ID:          id,
		Cmd:         py,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: cfg.ReadTimeout,
	}, nil
}

// Communicate sends one request and returns the raw reply body.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	if w.ReadTimeout <= 0 {
		return w.readReply()
	}

	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := w.readReply()
		done <- reply{body, err}
	}()

	select {
	case r := <-done:
		return r.body, r.err
	case <-time.After(w.ReadTimeout):
		// Killing the engine closes FD 3 and releases the reader goroutine.
		w.kill()
		return nil, fmt.Errorf("worker %d: %w (%s)", w.ID, ErrTimeout, w.ReadTimeout)
	}
}

func (w *PythonWorker) readReply() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch an import crash in the engine
	}

	respLen := binary.BigEndian.Uint32(header)
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// call runs a request and strips the status byte, turning engine errors into Go errors.
func (w *PythonWorker) call(req []byte) (*reader, error) {
	resp, err := w.Communicate(req)
	if err != nil {
		return nil, err
	}
	r := &reader{buf: resp}
	status := r.u8()
	switch {
	case r.err != nil:
		return nil, fmt.Errorf("empty engine reply: %w", r.err)
	case status == statusError:
		msg := r.bytes(int(r.u32()))
		if r.err != nil {
			return nil, fmt.Errorf("malformed engine error: %w", r.err)
		}
		return nil, fmt.Errorf("python worker error: %s", msg)
	case status != statusOK:
		return nil, fmt.Errorf("unknown engine status %d", status)
	}
	return r, nil
}

func (w *PythonWorker) kill() {
	if w.Cmd != nil && w.Cmd.Process != nil {
		_ = w.Cmd.Process.Kill()
	}
}

// Close shuts the engine down and waits for it to exit.
func (w *PythonWorker) Close() {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}
