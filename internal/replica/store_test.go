package replica

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/model"
	"shopchat/internal/repository/repotest"
)

func newTestStore() (*Store, *repotest.Store) {
	mem := repotest.NewStore()
	return NewStore(mem.Users(), mem.Products(), mem.Customers()), mem
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }
func intPtr(v int) *int         { return &v }

func TestUpsertProductIfAbsentIsIdempotent(t *testing.T) {
	store, mem := newTestStore()
	ctx := context.Background()

	product := &model.Product{ID: 10, Name: "Red Shoe", SKU: strPtr("RS1"), Price: f64Ptr(49.99), AvailableQty: intPtr(3), OwnerID: 1}
	require.NoError(t, store.UpsertProductIfAbsent(ctx, product))
	once, err := mem.Products().ListByOwner(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, store.UpsertProductIfAbsent(ctx, product))
	twice, err := mem.Products().ListByOwner(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, 1, mem.ProductCount())
}

func TestUpsertProductCreatesPlaceholderOwner(t *testing.T) {
	store, mem := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertProductIfAbsent(ctx, &model.Product{ID: 10, Name: "Red Shoe", SKU: strPtr("RS1"), OwnerID: 7}))

	owner, err := mem.Users().GetByID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, owner.Placeholder)
	assert.Equal(t, model.PlaceholderUserName, owner.Name)
}

func TestUpsertUserReconcilesPlaceholder(t *testing.T) {
	store, mem := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertProductIfAbsent(ctx, &model.Product{ID: 10, Name: "Red Shoe", SKU: strPtr("RS1"), OwnerID: 7}))
	require.NoError(t, store.UpsertUserIfAbsent(ctx, &model.User{ID: 7, Name: "Acme", Email: strPtr("ops@acme.test")}))

	owner, err := mem.Users().GetByID(ctx, 7)
	require.NoError(t, err)
	assert.False(t, owner.Placeholder)
	assert.Equal(t, "Acme", owner.Name)
	require.NotNil(t, owner.Email)
	assert.Equal(t, "ops@acme.test", *owner.Email)
	assert.Equal(t, 1, mem.UserCount())
}

func TestUpsertUserDoesNotOverwriteReplicatedUser(t *testing.T) {
	store, mem := newTestStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertUserIfAbsent(ctx, &model.User{ID: 7, Name: "Acme"}))
	require.NoError(t, store.UpsertUserIfAbsent(ctx, &model.User{ID: 7, Name: "Other"}))

	user, err := mem.Users().GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Acme", user.Name)
}

func TestApplyUpdates(t *testing.T) {
	store, mem := newTestStore()
	ctx := context.Background()

	t.Run("AbsentIsNoop", func(t *testing.T) {
		require.NoError(t, store.ApplyUserUpdate(ctx, 99, map[string]interface{}{"name": "Ghost"}))
		require.NoError(t, store.ApplyProductUpdate(ctx, 99, map[string]interface{}{"price": 1.0}))
		assert.Equal(t, 0, mem.UserCount())
		assert.Equal(t, 0, mem.ProductCount())
	})

	t.Run("OnlyPresentFieldsChange", func(t *testing.T) {
		require.NoError(t, store.UpsertProductIfAbsent(ctx, &model.Product{ID: 10, Name: "Red Shoe", SKU: strPtr("RS1"), Price: f64Ptr(49.99), OwnerID: 1}))
		require.NoError(t, store.ApplyProductUpdate(ctx, 10, map[string]interface{}{"available_qty": 0}))

		product, err := mem.Products().GetByID(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, "Red Shoe", product.Name)
		require.NotNil(t, product.Price)
		assert.Equal(t, 49.99, *product.Price)
		require.NotNil(t, product.AvailableQty)
		assert.Equal(t, 0, *product.AvailableQty)
	})

	t.Run("OwnerChangeEnsuresOwner", func(t *testing.T) {
		require.NoError(t, store.ApplyProductUpdate(ctx, 10, map[string]interface{}{"owner_id": int64(3)}))
		_, err := mem.Users().GetByID(ctx, 3)
		assert.NoError(t, err)
	})
}

type recordingEvictor struct{ evicted []int64 }

func (e *recordingEvictor) Evict(ctx context.Context, customerID int64) {
	e.evicted = append(e.evicted, customerID)
}

func TestApplyProductDelete(t *testing.T) {
	mem := repotest.NewStore()
	evictor := &recordingEvictor{}
	store := NewStore(mem.Users(), mem.Products(), mem.Customers(), WithEvictor(evictor))
	ctx := context.Background()

	require.NoError(t, store.UpsertProductIfAbsent(ctx, &model.Product{ID: 10, Name: "Red Shoe", SKU: strPtr("RS1"), OwnerID: 1}))
	require.NoError(t, store.UpsertProductIfAbsent(ctx, &model.Product{ID: 11, Name: "Blue Hat", SKU: strPtr("BH2"), OwnerID: 1}))
	pid, other := int64(10), int64(11)
	require.NoError(t, mem.Conversations().Set(ctx, 5, &pid))
	require.NoError(t, mem.Conversations().Set(ctx, 6, &other))

	require.NoError(t, store.ApplyProductDelete(ctx, 10))
	require.NoError(t, store.ApplyProductDelete(ctx, 10))
	assert.Equal(t, 1, mem.ProductCount())
	assert.Equal(t, []int64{5}, evictor.evicted)

	state, err := mem.Conversations().Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, state.LastProductID)

	state, err = mem.Conversations().Get(ctx, 6)
	require.NoError(t, err)
	require.NotNil(t, state.LastProductID)
	assert.Equal(t, int64(11), *state.LastProductID)
}

func TestEnsureCustomer(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesWithSuppliedID", func(t *testing.T) {
		store, mem := newTestStore()
		customer, err := store.EnsureCustomer(ctx, 42, 1, "+15550001")
		require.NoError(t, err)
		assert.Equal(t, int64(42), customer.ID)
		assert.Equal(t, int64(1), customer.UserID)
		assert.Equal(t, 1, mem.CustomerCount())

		again, err := store.EnsureCustomer(ctx, 42, 1, "+15550001")
		require.NoError(t, err)
		assert.Equal(t, customer.ID, again.ID)
		assert.Equal(t, 1, mem.CustomerCount())
	})

	t.Run("NeverRekeys", func(t *testing.T) {
		store, _ := newTestStore()
		_, err := store.EnsureCustomer(ctx, 42, 1, "+15550001")
		require.NoError(t, err)

		// a stale relation to another tenant does not move the customer
		customer, err := store.EnsureCustomer(ctx, 42, 2, "+15550001")
		require.NoError(t, err)
		assert.Equal(t, int64(1), customer.UserID)
	})

	t.Run("FillsMissingChannelAddress", func(t *testing.T) {
		store, mem := newTestStore()
		_, err := mem.Customers().CreateIfAbsent(ctx, &model.Customer{ID: 42, UserID: 1})
		require.NoError(t, err)

		customer, err := store.EnsureCustomer(ctx, 42, 1, "+15550001")
		require.NoError(t, err)
		require.NotNil(t, customer.WhatsAppNo)
		assert.Equal(t, "+15550001", *customer.WhatsAppNo)

		stored, err := mem.Customers().GetByID(ctx, 42)
		require.NoError(t, err)
		require.NotNil(t, stored.WhatsAppNo)
	})

	t.Run("ChannelAddressOwnedByAnotherID", func(t *testing.T) {
		store, _ := newTestStore()
		_, err := store.EnsureCustomer(ctx, 42, 1, "+15550001")
		require.NoError(t, err)

		_, err = store.EnsureCustomer(ctx, 43, 1, "+15550001")
		assert.Error(t, err)
	})

	t.Run("StoreFailure", func(t *testing.T) {
		store, mem := newTestStore()
		mem.Err = errors.New("connection refused")
		_, err := store.EnsureCustomer(ctx, 42, 1, "+15550001")
		assert.Error(t, err)
	})
}
