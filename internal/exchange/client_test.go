package exchange

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"context"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradsys-core/engine/internal/errors"
)

func TestClient_Candles_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"market":"KRW-BTC","candle_date_time_utc":"2026-07-29T00:00:00","candle_date_time_kst":"2026-07-29T09:00:00","opening_price":100,"high_price":110,"low_price":90,"trade_price":105,"candle_acc_trade_volume":12.5,"candle_acc_trade_price":1312.5,"unit":1}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	candles, err := c.Candles(context.Background(), "KRW-BTC", 1, 1)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	require.Equal(t, "KRW-BTC", candles[0].Market)
	require.Equal(t, 105.0, candles[0].Close)
	require.True(t, candles[0].Valid())
}

func TestClient_Markets_FlagsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"market":"KRW-ABC","korean_name":"에이비씨","english_name":"ABC","market_warning":"CAUTION"}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	markets, err := c.Markets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.True(t, markets[0].Warning)
}

func TestClient_Candles_UpstreamErrorTripsTransientKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, zap.NewNop())
	_, err := c.Candles(context.Background(), "KRW-BTC", 1, 1)
	require.Error(t, err)
	require.Equal(t, errors.KindTransient, errors.KindOf(err))
}
