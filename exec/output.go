package exec

import (
	"bytes"
	"io"
	"sync"
)

// lockedBuffer is a bytes.Buffer safe for the concurrent writes os/exec makes
// when stdout and stderr share a destination.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// capture records one stream, mirrors it into the combined buffer and
// optionally streams it to a passthrough writer.
type capture struct {
	own         lockedBuffer
	combined    *lockedBuffer
	passthrough io.Writer
}

func newCapture(combined *lockedBuffer, passthrough io.Writer) *capture {
	return &capture{combined: combined, passthrough: passthrough}
}

func (c *capture) Write(p []byte) (int, error) {
	_, _ = c.own.Write(p)
	_, _ = c.combined.Write(p)
	if c.passthrough != nil {
		n, err := c.passthrough.Write(p)
		if err != nil {
			return n, err
		}
		if n != len(p) {
			return n, io.ErrShortWrite
		}
	}
	return len(p), nil
}

func (c *capture) String() string {
	return c.own.String()
}
