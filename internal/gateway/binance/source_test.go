package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFuturesStub(t *testing.T, nowMs int64) *httptest.Server {
	t.Helper()
	kline := func(openMs, closeMs int64, close string) string {
		return fmt.Sprintf(`[%d,"100.0","100.5","99.5",%q,"120.0",%d,"12000.0",42,"70.0","7000.0","0"]`,
			openMs, close, closeMs)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		rows := []string{
			kline(nowMs-180_000, nowMs-120_001, "100.1"),
			kline(nowMs-120_000, nowMs-60_001, "100.2"),
			// forming bar, close time still ahead of the book timestamp
			kline(nowMs-60_000, nowMs+59_999, "100.3"),
		}
		fmt.Fprintf(w, "[%s]", strings.Join(rows, ","))
	})
	mux.HandleFunc("/fapi/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"lastUpdateId":1,"E":%d,"T":%d,"bids":[["100.00","5.0"]],"asks":[["100.02","4.0"]]}`,
			nowMs, nowMs)
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"XYZUSDT","markPrice":"100.01000000","indexPrice":"100.00000000","lastFundingRate":"0.00010000","nextFundingTime":0,"time":0}`)
	})
	mux.HandleFunc("/fapi/v1/exchangeInfo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbols":[{"symbol":"XYZUSDT","filters":[{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"100000","tickSize":"0.01"}]}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchSnapshotDropsFormingCandle(t *testing.T) {
	nowMs := time.Now().UnixMilli()
	srv := newFuturesStub(t, nowMs)

	src, err := New(Config{RESTBaseURL: srv.URL})
	require.NoError(t, err)

	snap, err := src.FetchSnapshot(context.Background(), "xyz/usdt")
	require.NoError(t, err)

	assert.Equal(t, "XYZUSDT", snap.Symbol)
	assert.Equal(t, nowMs, snap.At)
	assert.InDelta(t, 100.01, snap.MarkPrice, 1e-9)
	assert.InDelta(t, 0.01, snap.TickSize, 1e-9)
	for interval, candles := range snap.Klines {
		require.Lenf(t, candles, 2, "interval %s kept the forming bar", interval)
		assert.LessOrEqual(t, candles[len(candles)-1].CloseTime, snap.At)
	}
}
