package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRentMustConnectThenReturnRoundTrips(t *testing.T) {
	p := New(2)

	fd, outcome := p.Rent()
	require.Equal(t, RentMustConnect, outcome)
	assert.Equal(t, NoFD, fd)

	p.Return(100)

	fd, outcome = p.Rent()
	require.Equal(t, RentReused, outcome)
	assert.Equal(t, 100, fd)
}

func TestRentCapacityReached(t *testing.T) {
	p := New(1)

	_, outcome := p.Rent()
	require.Equal(t, RentMustConnect, outcome)

	_, outcome = p.Rent()
	assert.Equal(t, RentCapacityReached, outcome)
}

func TestRoundTripAnyReturnOrderDrainsCleanly(t *testing.T) {
	p := New(3)

	var reserved []int
	for i := 0; i < 3; i++ {
		_, outcome := p.Rent()
		require.Equal(t, RentMustConnect, outcome)
		reserved = append(reserved, 100+i)
	}

	// return out of order
	p.Return(reserved[2])
	p.Return(reserved[0])
	p.Return(reserved[1])

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		fd, outcome := p.Rent()
		require.Equal(t, RentReused, outcome)
		assert.NotEqual(t, NoFD, fd)
		seen[fd] = true
	}
	assert.Len(t, seen, 3)

	_, outcome := p.Rent()
	assert.Equal(t, RentCapacityReached, outcome)
}

func TestShutdownClosesParkedAndForcesReturnClose(t *testing.T) {
	p := New(2)
	p.Rent()
	p.Return(200)

	p.Shutdown()

	// Returning after shutdown closes the descriptor immediately instead
	// of parking it for reuse; a subsequent Rent sees a closed (NoFD)
	// slot, never the original live fd.
	p.Return(201)
	fd, _ := p.Rent()
	assert.Equal(t, NoFD, fd)
}
