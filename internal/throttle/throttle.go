// Package throttle implements the client-side token-bucket rate limiter
// that paces a flow's receive loop to a coordinator-assigned bits-per-
// second rate, adjustable mid-transfer as UpdatedRates arrive.
package throttle

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"
)

// minBucket is the smallest burst size ever configured, even for a very
// low rate, so a freshly (re)throttled reader is never starved waiting
// for a single byte's worth of tokens to accumulate. Tokens are bits
// (see ReadContext), so this is 1 KiB expressed in bits.
const minBucket = 1024 * 8 // 1 KiB

// refillGranularity is the notional time slice a bucket is sized
// against: capacity = max(rate * refillGranularity, minBucket). It
// mirrors the "how much can accumulate between adjustments" knob a
// token bucket needs independent of the long-run rate itself.
const refillGranularity = 100 // milliseconds, see bucketFor

// Limiter paces reads through an io.Reader to a mutable bits-per-
// second rate. A rate of 0 means unlimited: reads pass straight
// through with no waiting.
type Limiter struct {
	r       io.Reader
	limiter *rate.Limiter
	bps     uint64
}

// NewLimiter wraps r, initially throttled to bps bits per second. A
// bps of 0 means unlimited.
func NewLimiter(r io.Reader, bps uint64) *Limiter {
	return &Limiter{
		r:       r,
		limiter: rate.NewLimiter(limitFor(bps), bucketFor(bps)),
		bps:     bps,
	}
}

// SetRate adjusts the limiter's rate and burst capacity in place,
// taking effect on the next Read call. This is how a coordinator
// UpdatedRates broadcast is applied mid-transfer without tearing down
// the underlying connection.
func (l *Limiter) SetRate(bps uint64) {
	l.bps = bps
	l.limiter.SetLimit(limitFor(bps))
	l.limiter.SetBurst(bucketFor(bps))
}

// Rate reports the currently configured bits-per-second rate.
func (l *Limiter) Rate() uint64 {
	return l.bps
}

// Rebind points the limiter at a new underlying reader while keeping
// its rate and accumulated token bucket state, so a flow fetched in
// multiple successive calls stays subject to one continuous rate
// limit rather than a fresh burst allowance each time.
func (l *Limiter) Rebind(r io.Reader) {
	l.r = r
}

// Read reads into p, blocking as needed so the long-run throughput
// does not exceed the configured rate. It satisfies io.Reader so a
// Limiter can be used anywhere a reader is expected.
func (l *Limiter) Read(p []byte) (int, error) {
	return l.ReadContext(context.Background(), p)
}

// ReadContext is Read with a caller-supplied context, so a blocked wait
// for tokens can be cancelled (connection closed, flow deleted). The
// configured rate is bits per second (spec: "r bits/sec"), so an n-byte
// read consumes n*8 tokens.
func (l *Limiter) ReadContext(ctx context.Context, p []byte) (int, error) {
	n, err := l.r.Read(p)
	if n == 0 || l.bps == 0 {
		return n, err
	}
	res := l.limiter.ReserveN(time.Now(), n*8)
	if !res.OK() {
		return n, fmt.Errorf("throttle: %d-byte read exceeds burst of %d bits", n, l.limiter.Burst())
	}
	if d := res.Delay(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			res.Cancel()
			return n, ctx.Err()
		}
	}
	return n, err
}

// ReadFull reads exactly len(p) bytes from the underlying reader (short
// of EOF), blocking between chunks so the long-run throughput matches
// the configured rate. A single ReadContext call is never asked to
// read more than the limiter's current burst, since a reservation for
// more tokens than Burst() ever holds fails immediately, without
// waiting.
func (l *Limiter) ReadFull(p []byte) (int, error) {
	return l.ReadFullContext(context.Background(), p)
}

// ReadFullContext is ReadFull with a caller-supplied context.
func (l *Limiter) ReadFullContext(ctx context.Context, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		end := total + l.chunkSize()
		if end > len(p) {
			end = len(p)
		}
		n, err := l.ReadContext(ctx, p[total:end])
		total += n
		if err != nil {
			if err == io.EOF && total == len(p) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrNoProgress
		}
	}
	return total, nil
}

// chunkSize bounds a single ReadContext call to at most the limiter's
// current burst, in bytes, so ReadContext never reserves more tokens
// than the bucket can ever hold.
func (l *Limiter) chunkSize() int {
	if l.bps == 0 {
		return 1 << 20
	}
	c := l.limiter.Burst() / 8
	if c <= 0 {
		return 1
	}
	return c
}

// limitFor converts a bits-per-second rate into a rate.Limit. Zero
// maps to rate.Inf so a reservation never has to wait.
func limitFor(bps uint64) rate.Limit {
	if bps == 0 {
		return rate.Inf
	}
	return rate.Limit(bps)
}

// bucketFor sizes the token bucket's burst capacity to the configured
// rate: enough tokens accumulate over refillGranularity to admit a
// reasonably sized read without stalling on every call, floored at
// minBucket so a low rate still services small reads promptly.
func bucketFor(bps uint64) int {
	if bps == 0 {
		return minBucket
	}
	c := bps * refillGranularity / 1000
	if c < minBucket {
		return minBucket
	}
	if c > int64Max {
		return int64Max
	}
	return int(c)
}

const int64Max = 1<<31 - 1
