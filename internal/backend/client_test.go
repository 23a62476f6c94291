package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"otp-agent/internal/config"
	"otp-agent/internal/model"
)

type staticToken struct {
	token string
	err   error
}

func (s staticToken) AccessToken(context.Context) (string, error) {
	return s.token, s.err
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(config.BackendConfig{
		BaseURL:        server.URL,
		APIPrefix:      "/api/smsman",
		RequestTimeout: 2 * time.Second,
	}, staticToken{token: "tok-123"}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestBuySendsNumericIDsAndBearerToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/smsman/buy", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(12), body["application_id"])
		assert.Equal(t, float64(91), body["country_id"])

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "number": "+15550001111", "request_id": 777,
		})
	})

	p, err := client.Buy(context.Background(), "12", "91")
	require.NoError(t, err)
	assert.Equal(t, "+15550001111", p.PhoneNumber)
	assert.Equal(t, model.ID("777"), p.RequestID)
}

func TestBuyFailureCarriesBackendMessage(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    interface{}
		message string
	}{
		{"detail on 4xx", http.StatusBadRequest, map[string]string{"detail": "Insufficient balance"}, "Insufficient balance"},
		{"error in ok body", http.StatusOK, map[string]interface{}{"success": true, "error": "No numbers", "status": "api_error"}, "No numbers"},
		{"success false", http.StatusOK, map[string]interface{}{"success": false, "message": "Service disabled"}, "Service disabled"},
		{"bare 500", http.StatusInternalServerError, nil, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.body == nil {
					w.WriteHeader(tt.status)
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := client.Buy(context.Background(), "1", "1")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.Equal(t, tt.message, Message(err))
		})
	}
}

func TestMissingTokenMakesNoRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(config.BackendConfig{BaseURL: server.URL}, staticToken{err: errors.New("no token")}, zap.NewNop())

	_, err := client.Countries(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, called)

	client = NewClient(config.BackendConfig{BaseURL: server.URL}, staticToken{}, zap.NewNop())
	_, err = client.Balance(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, called)
}

func TestBackend401IsUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
	})

	_, err := client.Me(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, IsTransient(err))
}

func TestGetSMS(t *testing.T) {
	t.Run("received with defaults", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/smsman/get-sms", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r1", body["request_id"])
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sms_code": "482913", "status": "received"})
		})

		check, err := client.GetSMS(context.Background(), "r1")
		require.NoError(t, err)
		assert.True(t, check.Received)
		assert.Equal(t, "482913", check.Code)
		assert.Equal(t, "Your verification code: 482913", check.Text)
		assert.Equal(t, "Service", check.Sender)
	})

	t.Run("waiting", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": "waiting", "message": "No SMS yet"})
		})

		check, err := client.GetSMS(context.Background(), "r1")
		require.NoError(t, err)
		assert.False(t, check.Received)
	})

	t.Run("provider error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": "error", "error": "timeout"})
		})

		_, err := client.GetSMS(context.Background(), "r1")
		assert.Error(t, err)
	})
}

func TestCancelAcceptsEmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/smsman/cancel/r%2F1", r.URL.EscapedPath())
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, client.Cancel(context.Background(), "r/1"))
}

func TestCatalogCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/smsman/countries":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success":   true,
				"countries": []map[string]interface{}{{"id": 91, "title": "India", "code": "IN"}},
			})
		case "/api/smsman/services/91":
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
		case "/api/smsman/price/3/91":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"pricing": map[string]interface{}{"user_price": 12.5, "display_price": "₹12.50", "live_api": true, "availability": 40},
			})
		default:
			http.NotFound(w, r)
		}
	})

	countries, err := client.Countries(context.Background())
	require.NoError(t, err)
	require.Len(t, countries, 1)
	assert.Equal(t, model.ID("91"), countries[0].ID)

	services, err := client.Services(context.Background(), "91")
	require.NoError(t, err)
	assert.NotNil(t, services)
	assert.Empty(t, services)

	price, err := client.Price(context.Background(), "3", "91")
	require.NoError(t, err)
	assert.Equal(t, 12.5, price.Amount)
	assert.Equal(t, 40, price.Availability)
}

func TestWalletAndLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token": "new-token", "token_type": "bearer",
				"user": map[string]string{"username": "asha", "email": "asha@example.com"},
			})
		case "/api/wallet/balance":
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "balance": 99.5})
		case "/api/wallet/transactions":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			assert.Equal(t, "10", r.URL.Query().Get("skip"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true, "total": 1, "current_balance": 99.5,
				"transactions": []map[string]interface{}{{"_id": "t1", "type": "debit", "amount": 10, "created_at": "2025-01-02T03:04:05.123456"}},
			})
		}
	})

	token, err := client.Login(context.Background(), "asha@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "new-token", token.AccessToken)
	assert.Equal(t, "asha", token.User.Username)

	bal, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 99.5, bal.Amount)

	page, err := client.Transactions(context.Background(), 5, 10)
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, "debit", page.Transactions[0].Type)
}

func TestTransportFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(config.BackendConfig{BaseURL: url}, staticToken{token: "t"}, zap.NewNop())
	_, err := client.GetSMS(context.Background(), "r1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, IsTransient(err))
	assert.Equal(t, "network error, please try again", Message(err))
}

func TestRegister(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/signup", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			assert.Equal(t, "asha_01", body["username"])
			assert.Equal(t, "asha@example.com", body["email"])
			assert.Equal(t, "secret1", body["password"])
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token": "signup-token", "token_type": "bearer",
			"user": map[string]interface{}{"id": "u1", "username": "asha_01", "email": "asha@example.com"},
		})
	})

	token, err := client.Register(context.Background(), "asha_01", "asha@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "signup-token", token.AccessToken)
	assert.Equal(t, model.ID("u1"), token.User.ID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Email already registered"})
	})

	_, err := client.Register(context.Background(), "asha_01", "asha@example.com", "secret1")
	assert.Equal(t, "Email already registered", Message(err))
}

func TestAddMoney(t *testing.T) {
	t.Run("gateway order", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/wallet/add-money", r.URL.Path)
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

			var body map[string]interface{}
			if assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
				assert.Equal(t, float64(250), body["amount"])
				assert.Equal(t, "9876543210", body["mobile_number"])
				assert.Equal(t, "pay0", body["payment_method"])
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true, "message": "Payment order created", "order_id": "BRANDOTP_1",
				"payment_url": "https://pay.example.com/o/1", "amount": 250, "mobile_number": "9876543210",
			})
		})

		dep, err := client.AddMoney(context.Background(), 250, "9876543210", "pay0")
		require.NoError(t, err)
		assert.Equal(t, "https://pay.example.com/o/1", dep.PaymentURL)
		assert.Equal(t, "BRANDOTP_1", dep.OrderID)
		assert.Nil(t, dep.Balance)
	})

	t.Run("direct credit", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "added", "balance": 300.5})
		})

		dep, err := client.AddMoney(context.Background(), 100, "9876543210", "pay0")
		require.NoError(t, err)
		assert.Equal(t, float64(100), dep.Amount)
		require.NotNil(t, dep.Balance)
		assert.Equal(t, 300.5, *dep.Balance)
	})

	t.Run("rejected", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "detail": "Minimum amount is ₹50"})
		})

		_, err := client.AddMoney(context.Background(), 10, "9876543210", "pay0")
		assert.Equal(t, "Minimum amount is ₹50", Message(err))
	})
}
