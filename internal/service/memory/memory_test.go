package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/model"
	"shopchat/internal/repository/repotest"
)

// failingStore conversation store that is down
type failingStore struct{}

func (failingStore) Get(ctx context.Context, customerID int64) (*model.ConversationState, error) {
	return nil, errors.New("connection refused")
}

func (failingStore) Set(ctx context.Context, customerID int64, productID *int64) error {
	return errors.New("connection refused")
}

func TestIsFollowUp(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"is it in stock", true},
		{"How much is THAT?", true},
		{"what about the one above", true},
		{"same price?", true},
		{"details of the product please", true},
		{"is this available", true},
		{"it", false},
		{"I like that", false},
		{"price", false},
		{"how much is the Red Shoe", false},
		{"hello there", false},
		{"italian stockings", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFollowUp(tt.text))
		})
	}
}

func TestMemoryWriteThrough(t *testing.T) {
	ctx := context.Background()
	mem := repotest.NewStore()
	m := New(NewLocalCache(0), mem.Conversations())

	_, ok := m.GetLastProduct(ctx, 5)
	assert.False(t, ok)

	m.SetLastProduct(ctx, 5, 10)
	productID, ok := m.GetLastProduct(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, int64(10), productID)

	state, err := mem.Conversations().Get(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, state.LastProductID)
	assert.Equal(t, int64(10), *state.LastProductID)
}

func TestMemoryReadThroughAfterRestart(t *testing.T) {
	ctx := context.Background()
	mem := repotest.NewStore()
	New(NewLocalCache(0), mem.Conversations()).SetLastProduct(ctx, 5, 10)

	cache := NewLocalCache(0)
	restarted := New(cache, mem.Conversations())
	productID, ok := restarted.GetLastProduct(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, int64(10), productID)

	cached, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), cached)
}

func TestMemoryClearedStateReadsAsMiss(t *testing.T) {
	ctx := context.Background()
	mem := repotest.NewStore()
	require.NoError(t, mem.Conversations().Set(ctx, 5, nil))

	m := New(NewLocalCache(0), mem.Conversations())
	_, ok := m.GetLastProduct(ctx, 5)
	assert.False(t, ok)
}

func TestMemoryDurableFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	m := New(NewLocalCache(0), failingStore{})

	_, ok := m.GetLastProduct(ctx, 5)
	assert.False(t, ok)

	m.SetLastProduct(ctx, 5, 10)
	productID, ok := m.GetLastProduct(ctx, 5)
	require.True(t, ok)
	assert.Equal(t, int64(10), productID)

	m.Evict(ctx, 5)
	_, ok = m.GetLastProduct(ctx, 5)
	assert.False(t, ok)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	m := New(NewLocalCache(0), repotest.NewStore().Conversations())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			customerID := int64(i % 5)
			m.SetLastProduct(ctx, customerID, int64(i))
			m.GetLastProduct(ctx, customerID)
		}(i)
	}
	wg.Wait()

	for c := int64(0); c < 5; c++ {
		_, ok := m.GetLastProduct(ctx, c)
		assert.True(t, ok)
	}
}
