package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopchat/internal/model"
)

func TestCustomerRepository_GetByID(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCustomerRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_id", "whatsapp_no"}).
		AddRow(5, 1, "+15550001")
	mock.ExpectQuery("SELECT \\* FROM `customers` WHERE id = \\? ORDER BY `customers`.`id` LIMIT \\?").
		WithArgs(5, 1).
		WillReturnRows(rows)

	customer, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(1), customer.UserID)
	require.NotNil(t, customer.WhatsAppNo)
	assert.Equal(t, "+15550001", *customer.WhatsAppNo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_CreateIfAbsent(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCustomerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `customers`").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	created, err := repo.CreateIfAbsent(context.Background(), &model.Customer{ID: 5, UserID: 1, WhatsAppNo: strPtr("+15550001")})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepository_SetWhatsAppNo(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCustomerRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `customers` SET `whatsapp_no`=\\?.* WHERE id = \\? AND whatsapp_no IS NULL").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetWhatsAppNo(context.Background(), 5, "+15550001"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
