package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_MonotonicWithinMillisecond(t *testing.T) {
	now := time.Now().UTC()

	prev := ""
	for i := 0; i < 100; i++ {
		id, err := New(now)
		require.NoError(t, err)
		require.Len(t, id, 26)
		if prev != "" {
			assert.Greater(t, id, prev)
		}
		prev = id
	}
}

func TestValid(t *testing.T) {
	id, err := New(time.Time{})
	require.NoError(t, err)

	assert.True(t, Valid(id))
	assert.False(t, Valid(""))
	assert.False(t, Valid("not-a-ulid"))
	assert.False(t, Valid("1"))
}
