package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"NewMessageComplete", `{"event_type":"new_message","message_data":{"id":1,"customer_id":2,"user_id":3,"whatsapp_no":"628123","user_message":"hi"}}`, false},
		{"NewMessageMissingText", `{"event_type":"new_message","message_data":{"id":1,"customer_id":2,"user_id":3,"whatsapp_no":"628123"}}`, true},
		{"NewMessageWithoutPayload", `{"event_type":"new_message"}`, true},
		{"UserCreated", `{"event_type":"user_created","user":{"id":7,"username":"acme","email":"a@b.c"}}`, false},
		{"ProductCreatedWithLegacyOwner", `{"event_type":"product_created","product":{"id":9,"name":"Red Shoe","user_id":7}}`, false},
		{"ProductCreatedWithoutOwner", `{"event_type":"product_created","product":{"id":9,"name":"Red Shoe"}}`, true},
		{"ProductUpdatedPartial", `{"event_type":"product_updated","product":{"id":9,"price":12.5}}`, false},
		{"ProductDeleted", `{"event_type":"product_deleted","product_id":9}`, false},
		{"ProductDeletedWithoutID", `{"event_type":"product_deleted"}`, true},
		{"UnknownType", `{"event_type":"order_shipped"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.body), &env))
			err := env.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProductPayloadFields(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"event_type":"product_updated","product":{"id":9,"price":19.99,"available_qty":0}}`), &env))

	fields := env.Product.Fields()
	assert.Equal(t, map[string]interface{}{"price": 19.99, "available_qty": 0}, fields)
}

func TestAIResponseReadyWireShape(t *testing.T) {
	body, err := json.Marshal(NewAIResponseReady(11, "Red Shoe costs 49.99"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_type":"ai_response_ready","message_id":11,"ai_response":"Red Shoe costs 49.99"}`, string(body))
}
