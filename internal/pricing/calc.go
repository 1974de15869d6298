// Package pricing computes basket totals over a product/store/price matrix.
// Currency outputs are rounded to cents; intermediate sums are not.
package pricing

import (
	"math"

	"github.com/oesperto/comparador/internal/models"
)

type Summary struct {
	Highest float64 `json:"highest"`
	Lowest  float64 `json:"lowest"`
	Average float64 `json:"average"`
}

// BestPrice is the cheapest offer for one product. Resolved is false when no
// store prices the product; the other price fields are zero then.
type BestPrice struct {
	Product   string  `json:"product"`
	StoreID   string  `json:"store_id,omitempty"`
	StoreName string  `json:"store_name,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
	Resolved  bool    `json:"resolved"`
}

type Report struct {
	TotalsByStore map[string]float64 `json:"totals_by_store"`
	OptimalTotal  float64            `json:"optimal_total"`
	Summary       Summary            `json:"summary"`
	Savings       float64            `json:"savings"`
	BestPrices    []BestPrice        `json:"best_prices"`
	Unresolved    []string           `json:"unresolved"`
}

// CalculateTotalsByStore sums price*quantity per store. A product without a
// usable price at a store adds nothing to that store.
func CalculateTotalsByStore(products []models.ComparisonProduct, stores []models.Store) map[string]float64 {
	totals := make(map[string]float64, len(stores))
	for _, store := range stores {
		var sum float64
		for _, p := range products {
			if price, ok := usablePrice(p, store.ID); ok {
				sum += price * p.Quantity
			}
		}
		totals[store.ID] = Round2(sum)
	}
	return totals
}

// CalculateOptimalTotal buys every product at its cheapest store.
func CalculateOptimalTotal(products []models.ComparisonProduct, stores []models.Store) float64 {
	var sum float64
	for _, p := range products {
		if _, price, ok := cheapest(p, stores); ok {
			sum += price * p.Quantity
		}
	}
	return Round2(sum)
}

func SummarizeTotals(totals map[string]float64) Summary {
	if len(totals) == 0 {
		return Summary{}
	}
	first := true
	var s Summary
	var sum float64
	for _, v := range totals {
		if first || v > s.Highest {
			s.Highest = v
		}
		if first || v < s.Lowest {
			s.Lowest = v
		}
		first = false
		sum += v
	}
	s.Highest = Round2(s.Highest)
	s.Lowest = Round2(s.Lowest)
	s.Average = Round2(sum / float64(len(totals)))
	return s
}

func BestPrices(products []models.ComparisonProduct, stores []models.Store) []BestPrice {
	out := make([]BestPrice, 0, len(products))
	for _, p := range products {
		bp := BestPrice{Product: p.Name}
		if store, price, ok := cheapest(p, stores); ok {
			bp.StoreID = store.ID
			bp.StoreName = store.Name
			bp.UnitPrice = Round2(price)
			bp.Total = Round2(price * p.Quantity)
			bp.Resolved = true
		}
		out = append(out, bp)
	}
	return out
}

// Savings is how much the optimal basket saves over the most expensive store.
func Savings(products []models.ComparisonProduct, stores []models.Store) float64 {
	summary := SummarizeTotals(CalculateTotalsByStore(products, stores))
	savings := summary.Highest - CalculateOptimalTotal(products, stores)
	if savings < 0 {
		return 0
	}
	return Round2(savings)
}

func Analyze(products []models.ComparisonProduct, stores []models.Store) Report {
	totals := CalculateTotalsByStore(products, stores)
	best := BestPrices(products, stores)
	unresolved := []string{}
	for _, bp := range best {
		if !bp.Resolved {
			unresolved = append(unresolved, bp.Product)
		}
	}
	return Report{
		TotalsByStore: totals,
		OptimalTotal:  CalculateOptimalTotal(products, stores),
		Summary:       SummarizeTotals(totals),
		Savings:       Savings(products, stores),
		BestPrices:    best,
		Unresolved:    unresolved,
	}
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func cheapest(p models.ComparisonProduct, stores []models.Store) (models.Store, float64, bool) {
	var best models.Store
	var bestPrice float64
	found := false
	for _, store := range stores {
		price, ok := usablePrice(p, store.ID)
		if !ok {
			continue
		}
		if !found || price < bestPrice {
			best, bestPrice, found = store, price, true
		}
	}
	return best, bestPrice, found
}

func usablePrice(p models.ComparisonProduct, storeID string) (float64, bool) {
	price, ok := p.Prices[storeID]
	if !ok || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, false
	}
	return price, true
}
