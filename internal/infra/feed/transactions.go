package feed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// TransactionClient implements TransactionFeed over HTTP.
type TransactionClient struct {
	client *Client
}

// NewTransactionClient creates a transaction feed backed by client.
func NewTransactionClient(client *Client) *TransactionClient {
	return &TransactionClient{client: client}
}

// FetchTransactions returns one page of transactions for the query's token.
func (t *TransactionClient) FetchTransactions(ctx context.Context, q TransactionQuery) (*TransactionPage, error) {
	if q.Token == "" {
		return nil, fmt.Errorf("fetch transactions: empty token")
	}

	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.SinceSlot > 0 {
		params.Set("sinceSlot", strconv.FormatUint(q.SinceSlot, 10))
	}
	if q.SinceBlockTime > 0 {
		params.Set("sinceBlockTime", strconv.FormatInt(q.SinceBlockTime, 10))
	}
	if q.SinceSignature != "" {
		params.Set("sinceSignature", q.SinceSignature)
	}
	if q.PageToken != "" {
		params.Set("cursor", q.PageToken)
	}

	var page TransactionPage
	path := "/tokens/" + url.PathEscape(q.Token) + "/transactions"
	if err := t.client.GetJSON(ctx, path, params, &page); err != nil {
		return nil, fmt.Errorf("fetch transactions for %s: %w", q.Token, err)
	}
	if page.Pagination.HasMore && page.Pagination.Next == "" {
		return nil, fmt.Errorf("fetch transactions for %s: %w: hasMore without next token", q.Token, ErrMalformed)
	}
	return &page, nil
}
