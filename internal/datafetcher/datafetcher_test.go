package datafetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lpm-labs/dlmm-lpm/internal/types"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	poolAddr     = "So11111111111111111111111111111111111111112"
	positionAddr = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	ownerAddr    = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client := NewClient(ClientConfig{
		BaseURL:    server.URL,
		MaxRetries: 3,
		Backoff:    time.Millisecond,
	})
	client.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return client, &calls
}

func TestGetPoolSnapshot(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools/"+poolAddr, r.URL.Path)
		fmt.Fprintf(w, `{"address":%q,"activeId":120,"binStep":25,"reserveX":"1000000000","reserveY":5000,
			"totalLiquidity":"123.5","feesX":"10","tokenXDecimals":9,"tokenYDecimals":6,"price":"151.25","extra":"ignored"}`, poolAddr)
	})

	pool, err := client.GetPoolSnapshot(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int32(120), pool.ActiveID)
	assert.Equal(t, uint16(25), pool.BinStep)
	assert.Equal(t, "1000000000", pool.ReserveX.String())
	assert.Equal(t, "5000", pool.ReserveY.String())
	assert.True(t, pool.FeesY.IsZero())
	assert.Equal(t, 123.5, pool.TotalLiquidity)
	assert.Equal(t, 151.25, pool.CurrentPrice)
	assert.Equal(t, 9, pool.TokenXDecimals)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), pool.FetchedAt)
}

func TestGetPoolSnapshotDerivesPrice(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"address":%q,"activeId":0,"binStep":100,"tokenXDecimals":9,"tokenYDecimals":6}`, poolAddr)
	})

	pool, err := client.GetPoolSnapshot(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, pool.CurrentPrice, 1e-9)
}

func TestGetPoolSnapshotMissingFields(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"address":%q,"activeId":3}`, poolAddr)
	})

	_, err := client.GetPoolSnapshot(context.Background(), poolAddr)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
	assert.False(t, errors.Is(err, types.ErrUpstreamFetch))
}

func TestRetriesServerErrors(t *testing.T) {
	var attempts int32
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"address":%q,"activeId":1,"binStep":10}`, poolAddr)
	})

	_, err := client.GetPoolSnapshot(context.Background(), poolAddr)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestServerErrorsExhaustRetries(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GetPoolSnapshot(context.Background(), poolAddr)
	assert.True(t, errors.Is(err, types.ErrUpstreamFetch))
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestNotFoundIsNotRetried(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := client.GetPosition(context.Background(), positionAddr)
	assert.True(t, errors.Is(err, types.ErrUpstreamFetch))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestCircuitBreakerOpens(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 1, BreakerFailures: 2, BreakerCooldown: time.Minute})
	for i := 0; i < 2; i++ {
		_, err := client.GetPoolSnapshot(context.Background(), poolAddr)
		require.Error(t, err)
	}

	_, err := client.GetPoolSnapshot(context.Background(), poolAddr)
	assert.True(t, errors.Is(err, types.ErrUpstreamFetch))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestInvalidAddressSkipsRequest(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.GetPoolSnapshot(context.Background(), "not-an-address")
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestGetBins(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pools/"+poolAddr+"/bins", r.URL.Path)
		assert.Equal(t, "-5", r.URL.Query().Get("from"))
		assert.Equal(t, "5", r.URL.Query().Get("to"))
		fmt.Fprint(w, `{"bins":[{"binId":-1,"liquidity":10.5,"amountX":"3","amountY":4},{"binId":0,"liquidity":"2","volume24h":7}]}`)
	})

	bins, err := client.GetBins(context.Background(), poolAddr, -5, 5)
	require.NoError(t, err)
	require.Len(t, bins, 2)
	assert.Equal(t, types.Bin{BinID: -1, Liquidity: 10.5, AmountX: 3, AmountY: 4}, bins[0])
	assert.Equal(t, 7.0, bins[1].Volume24h)

	_, err = client.GetBins(context.Background(), poolAddr, 5, -5)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))
}

func TestGetBinsRejectsMalformedBin(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bins":[{"liquidity":1}]}`)
	})
	_, err := client.GetBins(context.Background(), poolAddr, 0, 1)
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func positionJSON(address string, lower, upper int) string {
	return fmt.Sprintf(`{"address":%q,"owner":%q,"pool":%q,"lowerBinId":%d,"upperBinId":%d,
		"tokenXDeposited":"123456789012345678901234","tokenYDeposited":42,"lastUpdatedAt":1735689600,"openedAt":1735603200}`,
		address, ownerAddr, poolAddr, lower, upper)
}

func TestGetPosition(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions/"+positionAddr, r.URL.Path)
		fmt.Fprint(w, positionJSON(positionAddr, 95, 105))
	})

	position, err := client.GetPosition(context.Background(), positionAddr)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, position.Owner)
	assert.Equal(t, poolAddr, position.Pool)
	assert.Equal(t, "123456789012345678901234", position.TokenXDeposited.String())
	assert.Equal(t, "42", position.TokenYDeposited.String())
	assert.True(t, position.FeesEarnedX.IsZero())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), position.LastUpdatedAt)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), position.OpenedAt)
}

func TestGetPositionDegenerateRange(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, positionJSON(positionAddr, 105, 95))
	})
	_, err := client.GetPosition(context.Background(), positionAddr)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))
}

func TestGetPositionsByOwnerSkipsMalformed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/owners/"+ownerAddr+"/positions", r.URL.Path)
		fmt.Fprintf(w, `{"positions":[%s,{"address":"bad"}]}`, positionJSON(positionAddr, 1, 2))
	})

	positions, err := client.GetPositionsByOwner(context.Background(), ownerAddr)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, positionAddr, positions[0].Address)
}

func TestGetPriceHistory(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1735689600", r.URL.Query().Get("from"))
		fmt.Fprint(w, `{"prices":[{"timestamp":1735776000,"price":"101"},{"timestamp":1735689600,"price":100}]}`)
	})

	prices, err := client.GetPriceHistory(context.Background(), poolAddr, from, from.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, prices, 2)
	assert.Equal(t, 100.0, prices[0].Price)
	assert.Equal(t, from, prices[0].Timestamp)

	badClient, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"prices":[{"timestamp":1735689600,"price":0}]}`)
	})
	_, err = badClient.GetPriceHistory(context.Background(), poolAddr, from, from.Add(time.Hour))
	assert.True(t, errors.Is(err, types.ErrInsufficientData))
}

func TestOutOfDomainBinsAreRejected(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, positionJSON(positionAddr, -2000000000, 2000000000))
	})
	_, err := client.GetPosition(context.Background(), positionAddr)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))

	client, _ = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"address":%q,"activeId":500000,"binStep":25}`, poolAddr)
	})
	_, err = client.GetPoolSnapshot(context.Background(), poolAddr)
	assert.True(t, errors.Is(err, types.ErrInvalidRange))
}
