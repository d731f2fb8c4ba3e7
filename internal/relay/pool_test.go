package relay

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyBuffer(t *testing.T) {
	var out bytes.Buffer
	n, err := copyBuffer(&out, io.LimitReader(zeros{}, 3*copyBufferSize+7))
	require.NoError(t, err)
	assert.EqualValues(t, 3*copyBufferSize+7, n)
	assert.Equal(t, 3*copyBufferSize+7, out.Len())
}

func TestBufferPoolSize(t *testing.T) {
	p := newBufferPool(64)
	b := p.Get()
	assert.Len(t, b, 64)
	p.Put(b)
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
