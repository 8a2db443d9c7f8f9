package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(ClientConfig{
		Name:    "test",
		BaseURL: url,
		Timeout: time.Second,
		Retry:   RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffMultiple: 2},
	}, nil)
}

func TestTransactionClient_BuildsIncrementalQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/MINT/transactions", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "1200", q.Get("sinceSlot"))
		assert.Equal(t, "sigA", q.Get("sinceSignature"))
		assert.Equal(t, "1700000000", q.Get("sinceBlockTime"))
		assert.Equal(t, "page2", q.Get("cursor"))
		_, _ = w.Write([]byte(`{
			"transactions": [{
				"signature": "sigB", "slot": 1201, "timestamp": 1700000060, "fee": 5000, "feePayer": "W1",
				"tokenTransfers": [{"mint": "MINT", "fromUserAccount": "W1", "toUserAccount": "W2", "rawAmount": "1500000", "decimals": 6}]
			}],
			"pagination": {"next": "page3", "hasMore": true}
		}`))
	}))
	defer srv.Close()

	feed := NewTransactionClient(newTestClient(srv.URL))
	page, err := feed.FetchTransactions(context.Background(), TransactionQuery{
		Token:          "MINT",
		SinceSlot:      1200,
		SinceSignature: "sigA",
		SinceBlockTime: 1_700_000_000,
		Limit:          50,
		PageToken:      "page2",
	})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)

	tx := page.Transactions[0]
	assert.Equal(t, "sigB", tx.Signature)
	assert.Equal(t, uint64(1201), tx.Slot)
	require.Len(t, tx.TokenTransfers, 1)
	assert.Equal(t, "1500000", tx.TokenTransfers[0].RawAmount)
	require.NotNil(t, tx.TokenTransfers[0].Decimals)
	assert.Equal(t, 6, *tx.TokenTransfers[0].Decimals)
	assert.True(t, page.Pagination.HasMore)
	assert.Equal(t, "page3", page.Pagination.Next)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"address": "MINT", "symbol": "TKN", "priceUsd": 0.5, "marketCap": 1000000}`))
	}))
	defer srv.Close()

	info, err := NewPriceClient(newTestClient(srv.URL)).GetTokenInfo(context.Background(), "MINT")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "TKN", info.Symbol)
	assert.Equal(t, 0.5, info.PriceUSD)
	assert.True(t, info.Found())
}

func TestClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewPriceClient(newTestClient(srv.URL)).GetTokenInfo(context.Background(), "MISSING")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ErrorInBodyIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": "could not find account"}`))
	}))
	defer srv.Close()

	_, err := NewTransactionClient(newTestClient(srv.URL)).FetchTransactions(context.Background(), TransactionQuery{Token: "T"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClient_MalformedBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"transactions": "nope"}`))
	}))
	defer srv.Close()

	_, err := NewTransactionClient(newTestClient(srv.URL)).FetchTransactions(context.Background(), TransactionQuery{Token: "T"})
	require.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWalletClient_DecodesBalancesAndAssets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallets/W1", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"tokens": [{"mint": "A", "uiAmount": 12.5}, {"mint": "B", "amount": 300}],
			"assets": [{"id": "nft1", "collection": "C", "name": "One"}]
		}`))
	}))
	defer srv.Close()

	snap, err := NewWalletClient(newTestClient(srv.URL)).GetWalletSnapshot(context.Background(), "W1")
	require.NoError(t, err)
	assert.Equal(t, "W1", snap.Address)
	require.Len(t, snap.Tokens, 2)
	require.NotNil(t, snap.Tokens[0].UIAmount)
	assert.Equal(t, 12.5, *snap.Tokens[0].UIAmount)
	assert.Equal(t, "300", snap.Tokens[1].Number.String())
	require.Len(t, snap.Assets, 1)
	assert.Equal(t, "C", snap.Assets[0].Collection)
}
