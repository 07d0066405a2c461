package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{30, 5 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(10*time.Second, 5*time.Hour, tt.attempt), "attempt %d", tt.attempt)
	}
	assert.Zero(t, RetryDelay(0, time.Hour, 3))
}
