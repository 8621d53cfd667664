package logutils

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeferredWriter_buffers_until_flush(t *testing.T) {
	d := NewDeferredWriter(0)

	n, err := d.Write([]byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = d.Write([]byte("world\n"))

	var out bytes.Buffer
	require.NoError(t, d.Flush(&out))
	assert.Equal(t, "hello world\n", out.String())

	out.Reset()
	require.NoError(t, d.Flush(&out))
	assert.Empty(t, out.String(), "flush clears the buffer")
}

func TestDeferredWriter_limit_drops_oldest_lines(t *testing.T) {
	d := NewDeferredWriter(12)

	for _, line := range []string{"one\n", "two\n", "three\n", "four\n"} {
		_, _ = d.Write([]byte(line))
	}

	var out bytes.Buffer
	require.NoError(t, d.Flush(&out))
	assert.Equal(t, "three\nfour\n", out.String())
	assert.Equal(t, 2, d.Dropped())
}

func TestDeferredWriter_concurrent_writes(t *testing.T) {
	d := NewDeferredWriter(0)
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.Write([]byte("x"))
		}()
	}
	wg.Wait()

	var out bytes.Buffer
	require.NoError(t, d.Flush(&out))
	assert.Len(t, out.String(), 100)
}
