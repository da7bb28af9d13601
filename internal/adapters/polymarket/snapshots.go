package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// SnapshotProvider implementa ports.SnapshotProvider sobre Gamma + CLOB.
// El id de mercado es el condition_id de Polymarket.
type SnapshotProvider struct {
	client *Client
	tiers  domain.SpreadTiers
	now    func() time.Time
}

// NewSnapshotProvider crea el provider. tiers vacío usa DefaultSpreadTiers.
func NewSnapshotProvider(client *Client, tiers domain.SpreadTiers) *SnapshotProvider {
	if tiers.HighBelowPct <= 0 || tiers.MediumBelowPct <= 0 {
		tiers = domain.DefaultSpreadTiers()
	}
	return &SnapshotProvider{client: client, tiers: tiers, now: time.Now}
}

// Snapshots devuelve un snapshot por mercado conocido. Los mercados resueltos
// llevan Outcome y no se cotizan. Un mercado sin book no aparece.
func (p *SnapshotProvider) Snapshots(ctx context.Context, marketIDs []string) (map[string]domain.MarketSnapshot, error) {
	result := make(map[string]domain.MarketSnapshot, len(marketIDs))
	if len(marketIDs) == 0 {
		return result, nil
	}

	infos, err := p.client.FetchMarkets(ctx, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("polymarket.Snapshots: %w", err)
	}
	at := p.now().UTC()

	tokenToMarket := make(map[string]string, len(infos))
	for id, info := range infos {
		switch {
		case info.Resolved:
			result[id] = domain.MarketSnapshot{MarketID: id, Resolved: true, Outcome: info.Outcome, At: at}
		case info.Closed:
			slog.Warn("polymarket: market closed without clear outcome", "market", id)
		case info.YesTokenID != "":
			tokenToMarket[info.YesTokenID] = id
		}
	}

	tokens := make([]string, 0, len(tokenToMarket))
	for t := range tokenToMarket {
		tokens = append(tokens, t)
	}
	sort.Strings(tokens)

	books, err := p.client.FetchOrderBooks(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("polymarket.Snapshots: %w", err)
	}
	for token, id := range tokenToMarket {
		book, ok := books[token]
		if !ok {
			continue
		}
		result[id] = domain.SnapshotFromBook(id, book, p.tiers, at)
	}

	slog.Debug("polymarket: snapshots built",
		"requested", len(marketIDs),
		"returned", len(result),
	)
	return result, nil
}
