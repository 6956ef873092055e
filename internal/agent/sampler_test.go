package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeltaPerSecondClampsNegative(t *testing.T) {
	assert.Equal(t, uint64(0), deltaPerSecond(1000, 500, 1.0))
}

func TestDeltaPerSecondComputesRate(t *testing.T) {
	assert.Equal(t, uint64(100), deltaPerSecond(0, 1000, 10.0))
}

func TestSamplerFirstCallEstablishesBaseline(t *testing.T) {
	s := NewSampler("")
	rx, tx, err := s.Sample()
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), rx)
	assert.Equal(t, uint64(0), tx)
}
