package tambal

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_evictsLeastRecentlyUsed(t *testing.T) {
	s, err := newSessions(2, 0, 0)
	require.NoError(t, err)

	s.setPending(1, "a")
	s.setPending(2, "b")
	// touch 1 so 2 becomes the oldest
	s.appendExchange(1, "q", "a")
	s.setPending(3, "c")

	assert.Equal(t, 2, s.len())
	_, ok := s.takePending(2)
	assert.False(t, ok)

	hash, ok := s.takePending(1)
	assert.True(t, ok)
	assert.Equal(t, "a", hash)
}

func TestSessions_boundsHistory(t *testing.T) {
	s, err := newSessions(0, 4, 10)
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		s.appendExchange(1, fmt.Sprintf("query %d", i), strings.Repeat("x", 50))
	}

	h := s.history(1)
	require.Len(t, h, 8)
	assert.Equal(t, "query 2", h[0].Content)
	assert.Equal(t, strings.Repeat("x", 10), h[1].Content)
	assert.Nil(t, s.history(99))
}

func TestSessions_takePendingClears(t *testing.T) {
	s, err := newSessions(0, 0, 0)
	require.NoError(t, err)

	_, ok := s.takePending(1)
	assert.False(t, ok)
	assert.Zero(t, s.len(), "reading must not create a session")

	s.setPending(1, "abc")
	hash, ok := s.takePending(1)
	assert.True(t, ok)
	assert.Equal(t, "abc", hash)

	_, ok = s.takePending(1)
	assert.False(t, ok)
}

func TestSessions_concurrentUse(t *testing.T) {
	s, err := newSessions(8, 2, 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for u := int64(0); u < 16; u++ {
		wg.Add(1)
		go func(u int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.appendExchange(u, "q", "a")
				s.setPending(u, "h")
				s.takePending(u)
				s.history(u)
			}
		}(u)
	}
	wg.Wait()
	assert.LessOrEqual(t, s.len(), 8)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "привет", truncateRunes("привет мир", 6))
	assert.Equal(t, "ok", truncateRunes("ok", 6))
}
