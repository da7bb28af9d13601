package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// FetchMarkets obtiene de Gamma los tokens y el estado de resolución de los
// condition_ids dados. Los mercados que Gamma no conoce no aparecen en el map.
func (c *Client) FetchMarkets(ctx context.Context, conditionIDs []string) (map[string]MarketInfo, error) {
	raw, err := c.fetchGammaMarkets(ctx, conditionIDs)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", err)
	}

	result := make(map[string]MarketInfo, len(raw))
	for id, gm := range raw {
		info, err := mapGammaMarket(gm)
		if err != nil {
			slog.Warn("gamma: unusable market, skipping", "market", id, "err", err)
			continue
		}
		result[id] = info
	}
	slog.Debug("gamma markets fetched", "requested", len(conditionIDs), "mapped", len(result))
	return result, nil
}

// fetchGammaMarkets pide los mercados en batches de gammaConditionMax.
// Un batch fallido se omite salvo que fallen todos.
func (c *Client) fetchGammaMarkets(ctx context.Context, conditionIDs []string) (map[string]gammaMarket, error) {
	result := make(map[string]gammaMarket, len(conditionIDs))
	var failed int
	var lastErr error

	for _, batch := range splitBatches(conditionIDs, gammaConditionMax) {
		path := fmt.Sprintf("%s?condition_ids=%s&limit=%d",
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.call(ctx, c.gamma, path, nil, &resp); err != nil {
			slog.Debug("gamma batch failed, skipping", "size", len(batch), "err", err)
			failed++
			lastErr = err
			continue
		}

		for _, gm := range resp {
			result[gm.ConditionID] = gm
		}
	}

	if failed > 0 && len(result) == 0 {
		return nil, lastErr
	}
	return result, nil
}
