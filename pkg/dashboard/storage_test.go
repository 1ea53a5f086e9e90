package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageInternsSameURL(t *testing.T) {
	s := NewStorage()
	a := s.Acquire("db1:9312", time.Minute, time.Second)
	b := s.Acquire("db1:9312", time.Minute, time.Second)
	assert.Same(t, a, b)
	assert.Equal(t, 1, s.Len())
}

func TestStorageEvictsUnreferencedOnNextAcquire(t *testing.T) {
	s := NewStorage()
	s.Acquire("cold:9312", time.Minute, time.Second)
	s.Release("cold:9312")
	require.Equal(t, 1, s.Len())

	s.Acquire("warm:9312", time.Minute, time.Second)
	assert.Equal(t, 1, s.Len(), "cold entry should be swept when a different URL is acquired")
}

func TestStorageKeepsStillReferencedEntries(t *testing.T) {
	s := NewStorage()
	s.Acquire("db1:9312", time.Minute, time.Second)
	s.Acquire("db2:9312", time.Minute, time.Second)
	assert.Equal(t, 2, s.Len())
}
