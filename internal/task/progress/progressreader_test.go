package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_FiresEveryInterval(t *testing.T) {
	var reports []int64

	r := NewReader(strings.NewReader(strings.Repeat("a", 100)), 100, 30, func(written, total int64) {
		reports = append(reports, written)
		assert.Equal(t, int64(100), total)
	})

	buf := make([]byte, 10)
	read := 0

	for {
		n, err := r.Read(buf)
		read += n

		if errors.Is(err, io.EOF) {
			break
		}

		require.NoError(t, err)
	}

	assert.Equal(t, 100, read)

	// 10-byte reads against a 30-byte interval fire on every third read.
	assert.Equal(t, []int64{30, 60, 90}, reports)
}

func TestReader_NoCallbackBelowInterval(t *testing.T) {
	calls := 0

	r := NewReader(bytes.NewReader([]byte("short")), 5, 1024, func(written, total int64) {
		calls++
	})

	_, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Zero(t, calls)
}
