package polymarket

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polyedge/internal/domain"
)

// resolvedPrice es el precio a partir del cual un outcome de un mercado
// cerrado se considera ganador.
const resolvedPrice = 0.99

// MarketInfo es lo que el engine necesita de Gamma: qué token cotizar y si
// el mercado ya se resolvió.
type MarketInfo struct {
	ConditionID string
	Question    string
	Slug        string
	EndDate     time.Time
	YesTokenID  string
	NoTokenID   string
	Volume24h   float64
	Active      bool
	Closed      bool
	Resolved    bool
	Outcome     domain.Side // solo si Resolved
}

// mapGammaMarket decodifica los arrays string-encoded de Gamma.
func mapGammaMarket(gm gammaMarket) (MarketInfo, error) {
	info := MarketInfo{
		ConditionID: gm.ConditionID,
		Question:    gm.Question,
		Slug:        gm.Slug,
		EndDate:     parseEndDate(gm.EndDateISO),
		Active:      gm.Active,
		Closed:      gm.Closed,
	}
	if v, err := gm.Volume24h.Float64(); err == nil {
		info.Volume24h = v
	}

	outcomes, err := decodeStringArray(gm.Outcomes)
	if err != nil {
		return info, fmt.Errorf("outcomes: %w", err)
	}
	tokens, err := decodeStringArray(gm.ClobTokenIDs)
	if err != nil {
		return info, fmt.Errorf("clobTokenIds: %w", err)
	}
	if len(outcomes) != 2 || len(tokens) != 2 {
		return info, fmt.Errorf("not a binary market: %d outcomes, %d tokens", len(outcomes), len(tokens))
	}

	yes, no := 0, 1
	if strings.EqualFold(outcomes[1], "yes") {
		yes, no = 1, 0
	}
	info.YesTokenID = tokens[yes]
	info.NoTokenID = tokens[no]

	if !gm.Closed || gm.OutcomePrices == "" {
		return info, nil
	}
	prices, err := decodeStringArray(gm.OutcomePrices)
	if err != nil || len(prices) != 2 {
		return info, nil
	}
	yesPrice, _ := strconv.ParseFloat(prices[yes], 64)
	noPrice, _ := strconv.ParseFloat(prices[no], 64)
	switch {
	case yesPrice >= resolvedPrice:
		info.Resolved, info.Outcome = true, domain.SideYes
	case noPrice >= resolvedPrice:
		info.Resolved, info.Outcome = true, domain.SideNo
	}
	return info, nil
}

// decodeStringArray acepta `["a","b"]` tal como lo manda Gamma.
func decodeStringArray(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseEndDate prueba los formatos que usa Polymarket. Cero si ninguno encaja.
func parseEndDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// mapOrderBooks convierte la respuesta batch de /books a un map tokenID→OrderBook.
func mapOrderBooks(raw []orderBookResponse) map[string]domain.OrderBook {
	result := make(map[string]domain.OrderBook, len(raw))
	for _, r := range raw {
		result[r.AssetID] = domain.OrderBook{
			TokenID: r.AssetID,
			Bids:    mapBookEntries(r.Bids, false),
			Asks:    mapBookEntries(r.Asks, true),
		}
	}
	return result
}

// mapBookEntries convierte entries raw a domain.BookEntry y los ordena.
// ascending=true → menor a mayor (asks), ascending=false → mayor a menor (bids).
func mapBookEntries(raw []bookEntryRaw, ascending bool) []domain.BookEntry {
	entries := make([]domain.BookEntry, 0, len(raw))
	for _, r := range raw {
		price := domain.ParsePrice(r.Price)
		size := domain.ParsePrice(r.Size)
		if price <= 0 || size <= 0 {
			continue
		}
		entries = append(entries, domain.BookEntry{Price: price, Size: size})
	}

	sort.Slice(entries, func(i, j int) bool {
		if ascending {
			return entries[i].Price < entries[j].Price
		}
		return entries[i].Price > entries[j].Price
	})

	return entries
}
