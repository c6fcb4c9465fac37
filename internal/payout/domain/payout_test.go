package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextRetryDelay_DoublesFromBase(t *testing.T) {
	assert.Equal(t, 15*time.Minute, NextRetryDelay(0))
	assert.Equal(t, 30*time.Minute, NextRetryDelay(1))
	assert.Equal(t, 60*time.Minute, NextRetryDelay(2))
	assert.Equal(t, 2*time.Hour, NextRetryDelay(3))
}

func TestNextRetryDelay_CapsAtFourHours(t *testing.T) {
	assert.Equal(t, 4*time.Hour, NextRetryDelay(4))
	assert.Equal(t, 4*time.Hour, NextRetryDelay(10))
}

func TestRetryable(t *testing.T) {
	p := &VendorPayout{RetryCount: MaxRetries - 1}
	assert.True(t, p.Retryable())

	p.RetryCount = MaxRetries
	assert.False(t, p.Retryable())
}
