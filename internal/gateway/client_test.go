package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oddsmith/kalshi-mm/pkg/types"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := New(&Config{
		BaseURL:     server.URL,
		Signer:      newTestSigner(t),
		RateLimit:   1000,
		RateBurst:   1000,
		HTTPTimeout: 5 * time.Second,
		Logger:      zap.NewNop(),
	})
	return client, server
}

func TestClient_PlaceOrder(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/trade-api/v2/portfolio/orders", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("KALSHI-ACCESS-KEY"))
		assert.NotEmpty(t, r.Header.Get("KALSHI-ACCESS-TIMESTAMP"))
		assert.NotEmpty(t, r.Header.Get("KALSHI-ACCESS-SIGNATURE"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "TEAMA", payload["ticker"])
		assert.Equal(t, "yes", payload["side"])
		assert.Equal(t, "buy", payload["action"])
		assert.Equal(t, "limit", payload["type"])
		assert.EqualValues(t, 53, payload["yes_price"])
		assert.EqualValues(t, 20, payload["count"])
		assert.EqualValues(t, 1700000000, payload["expiration_ts"])
		assert.NotEmpty(t, payload["client_order_id"])

		w.Write([]byte(`{"order":{"order_id":"o1","ticker":"TEAMA","side":"yes","yes_price":53,"status":"resting","remaining_count":20}}`))
	}))

	order, err := client.PlaceOrder(context.Background(), &OrderRequest{
		Ticker: "TEAMA", Side: types.SideYes, Action: "buy",
		Count: 20, Price: 53, ExpirationTs: 1700000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "o1", order.OrderID)
	assert.Equal(t, 53, order.Price())
}

func TestClient_PlaceOrderNoSide(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.EqualValues(t, 47, payload["no_price"])
		_, hasYes := payload["yes_price"]
		assert.False(t, hasYes)

		w.Write([]byte(`{"order":{"order_id":"o2","side":"no","no_price":47}}`))
	}))

	order, err := client.PlaceOrder(context.Background(), &OrderRequest{
		Ticker: "TEAMA", Side: types.SideNo, Action: "buy", Count: 5, Price: 47,
	})
	require.NoError(t, err)
	assert.Equal(t, 47, order.Price())
}

func TestClient_PlaceOrderRejected(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order":{}}`))
	}))

	_, err := client.PlaceOrder(context.Background(), &OrderRequest{
		Ticker: "TEAMA", Side: types.SideYes, Action: "buy", Count: 5, Price: 50,
	})
	assert.ErrorIs(t, err, types.ErrOrderRejected)
}

func TestClient_CancelOrderNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":"not_found","message":"order not found"}}`))
	}))

	err := client.CancelOrder(context.Background(), "gone")
	assert.ErrorIs(t, err, types.ErrOrderNotFound)
}

func TestClient_CancelOrder(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/trade-api/v2/portfolio/orders/o1", r.URL.Path)
		w.Write([]byte(`{}`))
	}))

	assert.NoError(t, client.CancelOrder(context.Background(), "o1"))
}

func TestClient_APIErrorEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"insufficient_balance","message":"not enough funds"}}`))
	}))

	_, err := client.GetBalance(context.Background())
	require.Error(t, err)

	var apiErr *types.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "insufficient_balance", apiErr.Code)
	assert.False(t, apiErr.Transient())
}

func TestClient_GetOrderbook(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/markets/TEAMA/orderbook", r.URL.Path)
		w.Write([]byte(`{"orderbook":{"yes":[[50,10],[48,5]],"no":[[40,7]]}}`))
	}))

	book, err := client.GetOrderbook(context.Background(), "TEAMA")
	require.NoError(t, err)
	assert.Equal(t, "TEAMA", book.Ticker)
	assert.Equal(t, [][2]int{{50, 10}, {48, 5}}, book.Yes)
	assert.Equal(t, [][2]int{{40, 7}}, book.No)
}

func TestClient_GetMarketsPagination(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "cursor=next") {
			w.Write([]byte(`{"markets":[{"ticker":"M2"}],"cursor":""}`))
			return
		}
		w.Write([]byte(`{"markets":[{"ticker":"M1"}],"cursor":"next"}`))
	}))

	markets, err := client.GetMarkets(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "M1", markets[0].Ticker)
	assert.Equal(t, "M2", markets[1].Ticker)
}

func TestClient_GetPositions(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"market_positions":[{"ticker":"TEAMA","position":12},{"ticker":"TEAMB","position":-4}],"cursor":""}`))
	}))

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, positions["TEAMA"])
	assert.Equal(t, -4, positions["TEAMB"])
}

func TestClient_GetBalance(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trade-api/v2/portfolio/balance", r.URL.Path)
		w.Write([]byte(`{"balance":123456}`))
	}))

	balance, err := client.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123456), balance)
}

func TestClient_GetFills(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"fills":[{"trade_id":"t1","ticker":"TEAMA","side":"yes","action":"buy","count":3,"yes_price":52}],"cursor":"c2"}`))
	}))

	fills, cursor, err := client.GetFills(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, "t1", fills[0].TradeID)
	assert.Equal(t, 52, fills[0].Price())
	assert.Equal(t, "c2", cursor)
}
