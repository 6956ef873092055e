package throttle

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterUnlimitedPassesThrough(t *testing.T) {
	src := bytes.NewReader([]byte("hello world"))
	l := NewLimiter(src, 0)

	buf := make([]byte, 11)
	n, err := l.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", string(buf))
}

func TestLimiterRate(t *testing.T) {
	l := NewLimiter(bytes.NewReader(nil), 1000)
	assert.Equal(t, uint64(1000), l.Rate())

	l.SetRate(5000)
	assert.Equal(t, uint64(5000), l.Rate())
}

func TestBucketForFloorsAtMinBucket(t *testing.T) {
	assert.Equal(t, minBucket, bucketFor(1))
	assert.Equal(t, minBucket, bucketFor(0))
}

func TestLimiterReadFullContextCancelled(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{1}, 1<<20))
	l := NewLimiter(src, 100) // 100 bits/sec: the first chunk drains the burst, later chunks must wait for a refill

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	buf := make([]byte, 1<<20)
	_, err := l.ReadFullContext(ctx, buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiterReadFullNeverExceedsBurstPerCall(t *testing.T) {
	src := bytes.NewReader(bytes.Repeat([]byte{7}, 4096))
	l := NewLimiter(src, 8_000_000) // high rate; a naive single WaitN(n*8) would still fail if n exceeded Burst()

	buf := make([]byte, 4096)
	n, err := l.ReadFull(buf)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
	assert.Equal(t, bytes.Repeat([]byte{7}, 4096), buf)
}

func TestLimiterPropagatesEOF(t *testing.T) {
	l := NewLimiter(bytes.NewReader(nil), 0)
	buf := make([]byte, 8)
	_, err := l.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
