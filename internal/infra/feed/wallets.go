package feed

import (
	"context"
	"fmt"
	"net/url"
)

// WalletClient implements WalletFeed over HTTP.
type WalletClient struct {
	client *Client
}

func NewWalletClient(client *Client) *WalletClient {
	return &WalletClient{client: client}
}

// GetWalletSnapshot returns the token balances and assets held by wallet.
func (w *WalletClient) GetWalletSnapshot(ctx context.Context, wallet string) (*WalletSnapshot, error) {
	var snap WalletSnapshot
	if err := w.client.GetJSON(ctx, "/wallets/"+url.PathEscape(wallet), nil, &snap); err != nil {
		return nil, fmt.Errorf("wallet snapshot %s: %w", wallet, err)
	}
	if snap.Address == "" {
		snap.Address = wallet
	}
	return &snap, nil
}
