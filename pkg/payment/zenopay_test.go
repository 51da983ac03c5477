package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZenoPayClient_Initiate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req InitiateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "0712345678", req.Phone)
		require.Equal(t, int64(10000), req.Amount)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(InitiateResponse{Success: true, OrderID: "zp-123"})
	}))
	defer srv.Close()

	c := NewZenoPayClient(srv.URL, "test-key")
	orderID, err := c.Initiate(context.Background(), InitiateRequest{
		PlanID: "monthly",
		Phone:  "0712345678",
		Amount: 10000,
	})
	require.NoError(t, err)
	require.Equal(t, "zp-123", orderID)
}

func TestZenoPayClient_InitiateRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(InitiateResponse{Success: false, Message: "insufficient funds"})
	}))
	defer srv.Close()

	c := NewZenoPayClient(srv.URL, "test-key")
	_, err := c.Initiate(context.Background(), InitiateRequest{PlanID: "monthly", Phone: "0712345678"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient funds")
}

func TestZenoPayClient_StatusVariantShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want func(t *testing.T, res *StatusResponse)
	}{
		{
			name: "paid-active",
			body: `{"paymentStatus":"paid","status":"active","endDate":"2026-10-01"}`,
			want: func(t *testing.T, res *StatusResponse) {
				require.Equal(t, "paid", res.PaymentStatus)
				require.Equal(t, "active", res.Status)
				require.Equal(t, "2026-10-01", res.EndDate)
			},
		},
		{
			name: "completed-success",
			body: `{"success":true,"status":"completed"}`,
			want: func(t *testing.T, res *StatusResponse) {
				require.NotNil(t, res.Success)
				require.True(t, *res.Success)
				require.Equal(t, "completed", res.Status)
			},
		},
		{
			name: "gateway-native-status",
			body: `{"zenopay_status":"COMPLETED"}`,
			want: func(t *testing.T, res *StatusResponse) {
				require.Equal(t, "COMPLETED", res.ZenoPayStatus)
				require.Nil(t, res.Success)
			},
		},
		{
			name: "pending",
			body: `{"status":"pending"}`,
			want: func(t *testing.T, res *StatusResponse) {
				require.Equal(t, "pending", res.Status)
				require.Nil(t, res.Success)
				require.Nil(t, res.Demo)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/payments/zp-123/status", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := NewZenoPayClient(srv.URL, "test-key")
			res, err := c.Status(context.Background(), "zp-123")
			require.NoError(t, err)
			tc.want(t, res)
		})
	}
}

func TestZenoPayClient_StatusHTTPErrors(t *testing.T) {
	for _, code := range []int{http.StatusUnauthorized, http.StatusNotFound} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", code)
		}))

		c := NewZenoPayClient(srv.URL, "test-key")
		_, err := c.Status(context.Background(), "zp-123")
		apiErr, ok := AsAPIError(err)
		require.True(t, ok)
		require.Equal(t, code, apiErr.StatusCode)
		srv.Close()
	}
}

func TestZenoPayClient_CircuitOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse every connection

	c := NewZenoPayClient(srv.URL, "test-key")
	for i := 0; i < 5; i++ {
		_, err := c.Status(context.Background(), "zp-123")
		require.Error(t, err)
	}

	// The breaker is now open: the next call fails without dialing.
	_, err := c.Status(context.Background(), "zp-123")
	require.Error(t, err)
	require.Contains(t, err.Error(), "circuit open")
}
