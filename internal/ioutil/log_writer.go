// Package ioutil provides I/O utilities shared across the module.
package ioutil

import (
	"bytes"
	"io"
	"sync"

	"go.abhg.dev/but/internal/silog"
)

// TestOutput is the subset of testing.TB used by TestOutputWriter.
type TestOutput interface {
	Logf(format string, args ...any)
	Cleanup(func())
}

// LogWriter builds and returns an io.Writer that
// writes messages to the given logger at the given level.
// If the logger is nil, a no-op writer is returned.
//
// The done function must be called when the writer is no longer needed.
// It will flush any buffered text to the logger.
//
// Writes to the returned writer are serialized by a mutex.
func LogWriter(logger *silog.Logger, lvl silog.Level) (w io.Writer, done func()) {
	if logger == nil {
		return io.Discard, func() {}
	}

	var printf func(string, ...any)
	switch lvl {
	case silog.LevelDebug:
		printf = logger.Debugf
	case silog.LevelInfo:
		printf = logger.Infof
	case silog.LevelWarn:
		printf = logger.Warnf
	case silog.LevelError:
		printf = logger.Errorf
	default:
		panic("unsupported log level")
	}

	return LogfWriter(printf, "")
}

// TestOutputWriter builds and returns an io.Writer that writes messages
// to the given testing.TB, with an optional prefix on every line.
// The writer is flushed automatically via t.Cleanup.
func TestOutputWriter(t TestOutput, prefix string) io.Writer {
	w, flush := LogfWriter(t.Logf, prefix)
	t.Cleanup(flush)
	return w
}

// LogfWriter adapts a printf-style function into an io.Writer that
// buffers partial lines and emits one call to printf per complete line.
// The returned done function flushes any buffered partial line.
func LogfWriter(printf func(string, ...any), prefix string) (w io.Writer, done func()) {
	pw := &printfWriter{printf: printf, prefix: prefix}
	return pw, pw.flush
}

// printfWriter is an io.Writer that writes to a printf-style function.
type printfWriter struct {
	// printf implementation should add a newline at the end.
	printf func(string, ...any)
	prefix string
	buff   bytes.Buffer
	mu     sync.Mutex
}

var _ io.Writer = (*printfWriter)(nil)

var _newline = []byte{'\n'}

func (w *printfWriter) Write(bs []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	total := len(bs)
	for len(bs) > 0 {
		var (
			line []byte
			ok   bool
		)
		line, bs, ok = bytes.Cut(bs, _newline)
		if !ok {
			// No newline. Buffer and wait for more.
			w.buff.Write(line)
			break
		}

		if w.buff.Len() == 0 {
			// No prior partial write. Flush.
			w.printf("%s%s", w.prefix, line)
			continue
		}

		// Flush prior partial write.
		w.buff.Write(line)
		w.printf("%s%s", w.prefix, w.buff.Bytes())
		w.buff.Reset()
	}
	return total, nil
}

// flush flushes buffered text, even if it doesn't end with a newline.
func (w *printfWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buff.Len() > 0 {
		w.printf("%s%s", w.prefix, w.buff.Bytes())
		w.buff.Reset()
	}
}
