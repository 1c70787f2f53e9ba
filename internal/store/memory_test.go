package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gaswatch/internal/types"
)

func TestMemory_PutAndGetAll(t *testing.T) {
	m := NewMemory(map[string]types.Reading{"2024-01-02": {"MQ2_ADC": 1.0}})
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, "2024-01-10", types.Reading{"MQ2_ADC": 2.0}))

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	key, ok := types.LatestKey(all)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-10", key)
}

func TestMemory_NoAliasing(t *testing.T) {
	m := NewMemory(nil)
	ctx := context.Background()

	r := types.Reading{"Suhu": 30.0}
	require.NoError(t, m.Put(ctx, "k", r))
	r["Suhu"] = 99.0

	all, _ := m.GetAll(ctx)
	assert.Equal(t, 30.0, all["k"]["Suhu"])

	all["k"]["Suhu"] = 1.0
	again, _ := m.GetAll(ctx)
	assert.Equal(t, 30.0, again["k"]["Suhu"])
}

func TestMemory_SimulatedOutage(t *testing.T) {
	m := NewMemory(nil)
	boom := errors.New("unreachable")
	m.SetErr(boom)

	_, err := m.GetAll(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Put(context.Background(), "k", types.Reading{}), boom)
	assert.ErrorIs(t, m.Ping(context.Background()), boom)

	m.SetErr(nil)
	assert.NoError(t, m.Ping(context.Background()))
}
