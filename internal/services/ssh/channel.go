package ssh

import (
	"bytes"
	"io"
	"sync"
)

// shellChannel adapts the blocking stdout pipe of an interactive shell to
// the polling handshake.Channel. A single goroutine drains stdout into a
// buffer; another closes finished when the shell exits.
type shellChannel struct {
	stdin io.Writer

	mu  sync.Mutex
	buf bytes.Buffer
	err error

	finished chan struct{}
}

func newShellChannel(stdin io.Writer, stdout io.Reader, wait func() error) *shellChannel {
	c := &shellChannel{
		stdin:    stdin,
		finished: make(chan struct{}),
	}
	go c.pump(stdout)
	go func() {
		_ = wait()
		close(c.finished)
	}()
	return c
}

func (c *shellChannel) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		c.mu.Lock()
		c.buf.Write(buf[:n])
		if err != nil {
			c.err = err
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

// DataReady reports buffered output or a pending read error.
func (c *shellChannel) DataReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len() > 0 || c.err != nil
}

// Read drains up to maxBytes of buffered output. Once the buffer is empty
// the terminal read error, if any, is returned.
func (c *shellChannel) Read(maxBytes int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.buf.Len() > 0 {
		p := make([]byte, min(maxBytes, c.buf.Len()))
		n, _ := c.buf.Read(p)
		return p[:n], nil
	}
	return nil, c.err
}

func (c *shellChannel) Write(p []byte) error {
	_, err := c.stdin.Write(p)
	return err
}

func (c *shellChannel) Finished() <-chan struct{} {
	return c.finished
}
