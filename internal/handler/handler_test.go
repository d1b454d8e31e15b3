package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shopchat/internal/middleware"
	"shopchat/internal/model"
	"shopchat/internal/monitor"
	"shopchat/internal/repository/repotest"
	"shopchat/pkg/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

// MockConversation is a mock implementation of ConversationReader
type MockConversation struct {
	mock.Mock
}

func (m *MockConversation) GetLastProduct(ctx context.Context, customerID int64) (int64, bool) {
	args := m.Called(ctx, customerID)
	return args.Get(0).(int64), args.Bool(1)
}

// MockResyncer is a mock implementation of Resyncer
type MockResyncer struct {
	mock.Mock
}

func (m *MockResyncer) Resync(ctx context.Context, userID int64, limit int) (int, error) {
	args := m.Called(ctx, userID, limit)
	return args.Int(0), args.Error(1)
}

type fixture struct {
	store        *repotest.Store
	conversation *MockConversation
	resyncer     *MockResyncer
	router       *gin.Engine
}

func strPtr(s string) *string { return &s }

func tokens(token string) (*middleware.UserInfo, error) {
	switch token {
	case "tenant-1":
		return &middleware.UserInfo{ID: 1}, nil
	case "tenant-2":
		return &middleware.UserInfo{ID: 2}, nil
	}
	return nil, errors.New("bad token")
}

func newFixture(t *testing.T, checks ...HealthCheck) *fixture {
	t.Helper()
	f := &fixture{
		store:        repotest.NewStore(),
		conversation: &MockConversation{},
		resyncer:     &MockResyncer{},
	}
	f.router = NewRouter(RouterConfig{
		Health:         NewHealthHandler("test", checks...),
		Customers:      NewCustomerHandler(f.store.Customers(), f.store.Messages(), f.store.Products(), f.conversation),
		Messages:       NewMessageHandler(f.resyncer),
		TokenValidator: tokens,
		Metrics:        monitor.NewMetricsCollector("handler_test"),
	})
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	number := "+15550001111"
	_, err := f.store.Customers().CreateIfAbsent(ctx, &model.Customer{ID: 7, UserID: 1, WhatsAppNo: &number})
	require.NoError(t, err)
	qty := 3
	_, err = f.store.Products().CreateIfAbsent(ctx, &model.Product{ID: 100, Name: "Red Shoe", SKU: strPtr("RS1"), OwnerID: 1, AvailableQty: &qty})
	require.NoError(t, err)
	_, err = f.store.Products().CreateIfAbsent(ctx, &model.Product{ID: 200, Name: "Other Shop Hat", SKU: strPtr("OS1"), OwnerID: 2})
	require.NoError(t, err)
	for id, text := range map[int64]string{1: "hi", 2: "how much is the Red Shoe", 3: "is it in stock"} {
		_, err = f.store.Messages().CreateIfAbsent(ctx, &model.Message{ID: id, CustomerID: 7, UserMessage: text})
		require.NoError(t, err)
	}
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(middleware.AuthorizationHeader, middleware.BearerPrefix+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) utils.Response {
	t.Helper()
	resp := utils.Response{Data: data}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		f := newFixture(t,
			HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "bus", Check: func(context.Context) error { return nil }},
		)
		w := f.do("GET", "/health", "", "")
		assert.Equal(t, http.StatusOK, w.Code)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "test", body["version"])
		assert.Len(t, body["services"], 2)
	})

	t.Run("required dependency down", func(t *testing.T) {
		f := newFixture(t,
			HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "bus", Check: func(context.Context) error { return errors.New("connection closed") }},
		)
		w := f.do("GET", "/health", "", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection closed")
	})

	t.Run("optional dependency down", func(t *testing.T) {
		f := newFixture(t,
			HealthCheck{Name: "redis", Optional: true, Check: func(context.Context) error { return errors.New("refused") }},
		)
		w := f.do("GET", "/health", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"optional":true`)
	})
}

func TestPingAndMetrics(t *testing.T) {
	f := newFixture(t)

	w := f.do("GET", "/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pong")

	w = f.do("GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `handler_test_http_request_total{method="GET",path="/ping",status="200"} 1`)
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do("GET", "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, utils.CodeNotFound, decode(t, w, nil).Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/v1/customers/7/messages", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/v1/customers/7/messages", "forged", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("POST", "/api/v1/messages/resync", "", "").Code)
}

func TestListMessages(t *testing.T) {
	f := newFixture(t)
	f.seed(t)

	t.Run("newest first", func(t *testing.T) {
		var list struct {
			List  []model.Message `json:"list"`
			Count int             `json:"count"`
			Limit int             `json:"limit"`
		}
		w := f.do("GET", "/api/v1/customers/7/messages", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &list)

		require.Len(t, list.List, 3)
		assert.Equal(t, int64(3), list.List[0].ID)
		assert.Equal(t, DefaultMessageLimit, list.Limit)
	})

	t.Run("limit", func(t *testing.T) {
		var list struct {
			List []model.Message `json:"list"`
		}
		w := f.do("GET", "/api/v1/customers/7/messages?limit=2", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &list)
		assert.Len(t, list.List, 2)
	})

	t.Run("bad limit", func(t *testing.T) {
		w := f.do("GET", "/api/v1/customers/7/messages?limit=1000", "tenant-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := f.do("GET", "/api/v1/customers/abc/messages", "tenant-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, utils.CodeInvalidParam, decode(t, w, nil).Code)
	})

	t.Run("unknown customer", func(t *testing.T) {
		w := f.do("GET", "/api/v1/customers/99/messages", "tenant-1", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, utils.CodeCustomerNotFound, decode(t, w, nil).Code)
	})

	t.Run("another tenant's customer", func(t *testing.T) {
		w := f.do("GET", "/api/v1/customers/7/messages", "tenant-2", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, utils.CodeCustomerNotFound, decode(t, w, nil).Code)
		assert.NotContains(t, w.Body.String(), "Red Shoe")
	})
}

func TestGetConversation(t *testing.T) {
	t.Run("remembered product", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t)
		f.conversation.On("GetLastProduct", mock.Anything, int64(7)).Return(int64(100), true)

		var view ConversationView
		w := f.do("GET", "/api/v1/customers/7/conversation", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &view)

		require.NotNil(t, view.LastProductID)
		assert.Equal(t, int64(100), *view.LastProductID)
		assert.Equal(t, "Red Shoe", view.Product.Name)
		f.conversation.AssertExpectations(t)
	})

	t.Run("nothing remembered", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t)
		f.conversation.On("GetLastProduct", mock.Anything, int64(7)).Return(int64(0), false)

		var view ConversationView
		w := f.do("GET", "/api/v1/customers/7/conversation", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &view)
		assert.Nil(t, view.LastProductID)
		assert.Nil(t, view.Product)
	})

	t.Run("product of another tenant", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t)
		f.conversation.On("GetLastProduct", mock.Anything, int64(7)).Return(int64(200), true)

		w := f.do("GET", "/api/v1/customers/7/conversation", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "Other Shop Hat")
	})

	t.Run("deleted product", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t)
		f.conversation.On("GetLastProduct", mock.Anything, int64(7)).Return(int64(555), true)

		var view ConversationView
		w := f.do("GET", "/api/v1/customers/7/conversation", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &view)
		assert.Nil(t, view.LastProductID)
	})

	t.Run("another tenant's customer", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t)

		w := f.do("GET", "/api/v1/customers/7/conversation", "tenant-2", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		f.conversation.AssertNotCalled(t, "GetLastProduct", mock.Anything, mock.Anything)
	})
}

func TestResync(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		f := newFixture(t)
		f.resyncer.On("Resync", mock.Anything, int64(1), 0).Return(2, nil)

		var data map[string]interface{}
		w := f.do("POST", "/api/v1/messages/resync", "tenant-1", "")
		require.Equal(t, http.StatusOK, w.Code)
		decode(t, w, &data)
		assert.Equal(t, float64(2), data["published"])
		f.resyncer.AssertExpectations(t)
	})

	t.Run("with limit", func(t *testing.T) {
		f := newFixture(t)
		f.resyncer.On("Resync", mock.Anything, int64(2), 10).Return(0, nil)

		w := f.do("POST", "/api/v1/messages/resync", "tenant-2", `{"limit":10}`)
		assert.Equal(t, http.StatusOK, w.Code)
		f.resyncer.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		f := newFixture(t)

		w := f.do("POST", "/api/v1/messages/resync", "tenant-1", `{"limit":500}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.resyncer.AssertNotCalled(t, "Resync", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t)

		w := f.do("POST", "/api/v1/messages/resync", "tenant-1", `{"limit":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bus failure", func(t *testing.T) {
		f := newFixture(t)
		f.resyncer.On("Resync", mock.Anything, int64(1), 0).Return(1, errors.New("bus closed"))

		w := f.do("POST", "/api/v1/messages/resync", "tenant-1", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp := decode(t, w, nil)
		assert.Equal(t, utils.CodeBusError, resp.Code)
		assert.False(t, strings.Contains(resp.Message, "bus closed"))
	})
}
