package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	tests := map[string]struct {
		attempt int
		want    time.Duration
	}{
		"first":        {attempt: 1, want: time.Second},
		"second":       {attempt: 2, want: 2 * time.Second},
		"third":        {attempt: 3, want: 4 * time.Second},
		"capped":       {attempt: 4, want: 5 * time.Second},
		"stays capped": {attempt: 10, want: 5 * time.Second},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, backoffDelay(tt.attempt, time.Second, 5*time.Second))
		})
	}
}
