package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolValidation(t *testing.T) {
	tests := []struct {
		name        string
		pool        Pool
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid pool",
			pool: Pool{
				OwnerID:      "owner-1",
				Name:         "Central Garage",
				Address:      "1 Main St",
				PricePerHour: 2.5,
				TotalUnits:   10,
			},
			expectError: false,
		},
		{
			name: "empty owner_id",
			pool: Pool{
				Name:       "Central Garage",
				Address:    "1 Main St",
				TotalUnits: 10,
			},
			expectError: true,
			errorMsg:    "owner_id",
		},
		{
			name: "blank name",
			pool: Pool{
				OwnerID:    "owner-1",
				Name:       "   ",
				Address:    "1 Main St",
				TotalUnits: 10,
			},
			expectError: true,
			errorMsg:    "name",
		},
		{
			name: "zero total units",
			pool: Pool{
				OwnerID:    "owner-1",
				Name:       "Central Garage",
				Address:    "1 Main St",
				TotalUnits: 0,
			},
			expectError: true,
			errorMsg:    "total_units",
		},
		{
			name: "negative price",
			pool: Pool{
				OwnerID:      "owner-1",
				Name:         "Central Garage",
				Address:      "1 Main St",
				TotalUnits:   3,
				PricePerHour: -1,
			},
			expectError: true,
			errorMsg:    "price_per_hour",
		},
		{
			name: "free parking is valid",
			pool: Pool{
				OwnerID:    "owner-1",
				Name:       "Lot B",
				Address:    "2 Side St",
				TotalUnits: 1,
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pool.Validate()
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPoolInvariant(t *testing.T) {
	p := &Pool{ID: "p1", TotalUnits: 5, AvailableUnits: 3}

	assert.True(t, p.IsAvailable())
	assert.Equal(t, 2, p.OccupiedUnits())
	assert.NoError(t, p.CheckInvariant(2))
	assert.Error(t, p.CheckInvariant(1))

	p.AvailableUnits = 6
	assert.Error(t, p.CheckInvariant(-1))

	p.AvailableUnits = 0
	assert.False(t, p.IsAvailable())
}

func TestPoolClone(t *testing.T) {
	p := &Pool{ID: "p1", TotalUnits: 5, AvailableUnits: 5}
	c := p.Clone()
	c.AvailableUnits = 1

	assert.Equal(t, 5, p.AvailableUnits)
}

func TestErrorMatching(t *testing.T) {
	err := ErrNoAvailableUnits.WithMessage("pool p1 is full")

	assert.ErrorIs(t, err, ErrNoAvailableUnits)
	assert.NotErrorIs(t, err, ErrInsufficientCapacity)
	assert.Equal(t, "pool p1 is full", err.Error())

	de, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, de.Kind)
	assert.Equal(t, "NO_AVAILABLE_UNITS", de.Code)

	_, ok = AsError(assert.AnError)
	assert.False(t, ok)
}

func TestActor(t *testing.T) {
	assert.True(t, Actor{ID: "u1", Role: RoleUser}.Valid())
	assert.True(t, Actor{ID: "o1", Role: RoleOwner}.IsOwner())
	assert.False(t, Actor{ID: "u1", Role: "admin"}.Valid())
	assert.False(t, Actor{Role: RoleUser}.Valid())
}
