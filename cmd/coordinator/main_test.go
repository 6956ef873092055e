package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetenvFallback(t *testing.T) {
	assert.Equal(t, "fallback", getenv("VARYS_TEST_UNSET_VAR", "fallback"))
}

func TestGetenvDurationFallbackOnInvalid(t *testing.T) {
	t.Setenv("VARYS_TEST_DURATION", "not-a-duration")
	assert.Equal(t, 5*time.Second, getenvDuration("VARYS_TEST_DURATION", 5*time.Second))
}

func TestGetenvDurationParsesValid(t *testing.T) {
	t.Setenv("VARYS_TEST_DURATION", "250ms")
	assert.Equal(t, 250*time.Millisecond, getenvDuration("VARYS_TEST_DURATION", 5*time.Second))
}
