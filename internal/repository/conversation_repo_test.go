package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationRepository_Get(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `conversation_state` WHERE customer_id = \\?").
		WithArgs(5, 1).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "last_product_id"}).AddRow(5, 10))

	state, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, state.LastProductID)
	assert.Equal(t, int64(10), *state.LastProductID)

	mock.ExpectQuery("SELECT \\* FROM `conversation_state` WHERE customer_id = \\?").
		WithArgs(6, 1).
		WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))

	_, err = repo.Get(context.Background(), 6)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationRepository_SetUpserts(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewConversationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `conversation_state` .* ON DUPLICATE KEY UPDATE `last_product_id`=VALUES\\(`last_product_id`\\),`updated_at`=VALUES\\(`updated_at`\\)").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.Set(context.Background(), 5, int64Ptr(10)))
	assert.NoError(t, mock.ExpectationsWereMet())
}
