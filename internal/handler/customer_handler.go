package handler

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"shopchat/internal/middleware"
	"shopchat/internal/model"
	"shopchat/internal/repository"
	"shopchat/pkg/log"
	"shopchat/pkg/utils"
)

// DefaultMessageLimit page size of the message history
const DefaultMessageLimit = 20

// ConversationReader reads the remembered product of a customer
type ConversationReader interface {
	GetLastProduct(ctx context.Context, customerID int64) (int64, bool)
}

// CustomerHandler read-only views of a tenant's customers
type CustomerHandler struct {
	customers    repository.CustomerRepository
	messages     repository.MessageRepository
	products     repository.ProductRepository
	conversation ConversationReader
}

// NewCustomerHandler creates a customer handler
func NewCustomerHandler(
	customers repository.CustomerRepository,
	messages repository.MessageRepository,
	products repository.ProductRepository,
	conversation ConversationReader,
) *CustomerHandler {
	return &CustomerHandler{
		customers:    customers,
		messages:     messages,
		products:     products,
		conversation: conversation,
	}
}

// ConversationView the remembered product of a customer
type ConversationView struct {
	CustomerID    int64          `json:"customer_id"`
	LastProductID *int64         `json:"last_product_id"`
	Product       *model.Product `json:"product,omitempty"`
}

// ListMessages returns the newest messages of a customer owned by the caller
func (h *CustomerHandler) ListMessages(c *gin.Context) {
	customer, ok := h.ownedCustomer(c)
	if !ok {
		return
	}
	limit, err := utils.ParseLimit(c.Query("limit"), DefaultMessageLimit)
	if err != nil {
		utils.Fail(c, err)
		return
	}

	messages, err := h.messages.ListByCustomer(c.Request.Context(), customer.ID, limit)
	if err != nil {
		log.WithFields(map[string]interface{}{
			"customer_id": customer.ID,
			"error":       err.Error(),
		}).Error("Failed to list messages")
		utils.Fail(c, utils.WrapError(err, utils.CodeDatabaseError, "failed to list messages"))
		return
	}
	utils.SuccessList(c, messages, len(messages), limit)
}

// GetConversation returns the product the customer last talked about. A
// remembered product outside the caller's catalog reads as none.
func (h *CustomerHandler) GetConversation(c *gin.Context) {
	customer, ok := h.ownedCustomer(c)
	if !ok {
		return
	}

	view := ConversationView{CustomerID: customer.ID}
	productID, found := h.conversation.GetLastProduct(c.Request.Context(), customer.ID)
	if found {
		product, err := h.products.GetByID(c.Request.Context(), productID)
		switch {
		case err == nil && product.OwnerID == customer.UserID:
			view.LastProductID = &productID
			view.Product = product
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			utils.Fail(c, utils.WrapError(err, utils.CodeDatabaseError, "failed to load product"))
			return
		}
	}
	utils.Success(c, view)
}

// ownedCustomer resolves the :id customer and checks it belongs to the caller.
// Another tenant's customer is reported as not found.
func (h *CustomerHandler) ownedCustomer(c *gin.Context) (*model.Customer, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Fail(c, utils.ErrUnauthorized)
		return nil, false
	}
	id, err := utils.ValidateID(c.Param("id"))
	if err != nil {
		utils.Fail(c, err)
		return nil, false
	}

	customer, err := h.customers.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Fail(c, utils.ErrCustomerNotFound)
		return nil, false
	}
	if err != nil {
		utils.Fail(c, utils.WrapError(err, utils.CodeDatabaseError, "failed to load customer"))
		return nil, false
	}
	if customer.UserID != userID {
		log.WithFields(map[string]interface{}{
			"customer_id": id,
			"user_id":     userID,
		}).Warn("Customer requested by another tenant")
		utils.Fail(c, utils.ErrCustomerNotFound)
		return nil, false
	}
	return customer, true
}
