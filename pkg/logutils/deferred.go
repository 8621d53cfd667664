package logutils

import (
	"bytes"
	"io"
	"sync"
)

// DeferredWriter holds log output while a full-screen program owns the
// terminal. Once the buffer reaches its limit the oldest complete lines are
// discarded. Safe for concurrent use.
type DeferredWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	limit   int
	dropped int
}

// NewDeferredWriter returns a writer that keeps at most limit bytes. A
// limit of 0 keeps everything.
func NewDeferredWriter(limit int) *DeferredWriter {
	return &DeferredWriter{limit: limit}
}

func (d *DeferredWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.buf.Write(p)
	if d.limit > 0 {
		for d.buf.Len() > d.limit {
			i := bytes.IndexByte(d.buf.Bytes(), '\n')
			if i < 0 {
				d.dropped++
				d.buf.Reset()
				break
			}
			d.buf.Next(i + 1)
			d.dropped++
		}
	}
	return n, err
}

// Dropped returns how many lines were discarded to stay under the limit.
func (d *DeferredWriter) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Flush writes the buffered output to w and clears the buffer.
func (d *DeferredWriter) Flush(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buf.Len() == 0 {
		return nil
	}
	_, err := d.buf.WriteTo(w)
	return err
}
