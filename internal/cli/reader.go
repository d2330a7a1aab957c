package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// LineReader reads lines from a reader without blocking past context
// cancellation.
type LineReader struct {
	reader      *bufio.Reader
	readingLock sync.Mutex
}

// NewLineReader creates a line reader.
func NewLineReader(reader io.Reader) *LineReader {
	if reader == nil {
		panic("reader cannot be nil")
	}
	return &LineReader{reader: bufio.NewReader(reader)}
}

// ReadLine reads one trimmed line. A final line without a newline is
// returned with a nil error; io.EOF follows on the next call.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.readingLock.Lock()
		defer r.readingLock.Unlock()

		value, err := r.reader.ReadString('\n')
		if errors.Is(err, io.EOF) && value != "" {
			err = nil
		}
		resultCh <- result{value: value, err: err}
	}()

	// The read goroutine keeps running after cancellation until its read
	// returns.
	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}

// RunPlainChat runs the chat as a simple prompt loop, for pipes and
// terminals without full-screen support. It returns the session ID so the
// caller can print it for later resumption.
func RunPlainChat(ctx context.Context, asker Asker, in io.Reader, out io.Writer, opts ChatOptions) (string, error) {
	session := &chatSession{opts: opts}
	reader := NewLineReader(in)

	for {
		if _, err := fmt.Fprint(out, FormatPrompt("ask")); err != nil {
			return session.opts.SessionID, err
		}

		line, err := reader.ReadLine(ctx)
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, ErrInputCancelled):
			_, _ = fmt.Fprintln(out)
			return session.opts.SessionID, nil
		case err != nil:
			return session.opts.SessionID, fmt.Errorf("failed to read input: %w", err)
		}

		t, handled := session.command(line)
		if !handled {
			resp, askErr := asker.Ask(ctx, session.request(line))
			if t, err = session.answer(resp, askErr); err != nil {
				return session.opts.SessionID, err
			}
		}
		if t.quit {
			return session.opts.SessionID, nil
		}
		if t.output != "" {
			if _, err := fmt.Fprintln(out, t.output); err != nil {
				return session.opts.SessionID, err
			}
		}
	}
}
