package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoice(t *testing.T) {
	var gotBody InvoiceRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/invoices", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(Invoice{
			OperationRef: "op-123",
			PayURL:       "https://pay.example/op-123",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")

	inv, err := client.CreateInvoice(context.Background(), &InvoiceRequest{
		AmountMinor:    18000,
		Currency:       "RUB",
		OrderReference: "order-1",
		Description:    "100 stars <script>",
	})
	require.NoError(t, err)
	assert.Equal(t, "op-123", inv.OperationRef)
	assert.Equal(t, "https://pay.example/op-123", inv.PayURL)

	// purpose is sanitized before leaving the process
	assert.Equal(t, "100 stars script", gotBody.Description)
}

func TestCreateInvoiceRejectsEmptyOperationRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Invoice{})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	_, err := client.CreateInvoice(context.Background(), &InvoiceRequest{OrderReference: "order-1"})
	assert.Error(t, err)
}

func TestCreateInvoiceProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	_, err := client.CreateInvoice(context.Background(), &InvoiceRequest{OrderReference: "order-1"})
	assert.Error(t, err)
}

func TestOperationStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/operations/op-123", r.URL.Path)
		json.NewEncoder(w).Encode(Operation{StatusCode: StatusSettled, StatusLabel: "settled"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")

	op, err := client.OperationStatus(context.Background(), "op-123")
	require.NoError(t, err)
	assert.True(t, op.Settled())
	assert.Equal(t, "settled", op.StatusLabel)
}

func TestOperationStatusNotSettled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Operation{StatusCode: 0, StatusLabel: "created"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")

	op, err := client.OperationStatus(context.Background(), "op-456")
	require.NoError(t, err)
	assert.False(t, op.Settled())
}
