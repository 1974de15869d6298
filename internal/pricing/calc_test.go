package pricing

import (
	"math"
	"testing"

	"github.com/oesperto/comparador/internal/models"
	"github.com/stretchr/testify/assert"
)

func basket() ([]models.ComparisonProduct, []models.Store) {
	products := []models.ComparisonProduct{
		{Name: "Rice", Quantity: 2, Prices: map[string]float64{"A": 5, "B": 4}},
		{Name: "Beans", Quantity: 1, Prices: map[string]float64{"A": 3}},
	}
	stores := []models.Store{{ID: "A", Name: "Store A"}, {ID: "B", Name: "Store B"}}
	return products, stores
}

func TestCalculateTotalsByStore(t *testing.T) {
	products, stores := basket()

	totals := CalculateTotalsByStore(products, stores)

	assert.Equal(t, map[string]float64{"A": 13.00, "B": 8.00}, totals)
}

func TestCalculateOptimalTotal(t *testing.T) {
	products, stores := basket()

	assert.Equal(t, 11.00, CalculateOptimalTotal(products, stores))
}

func TestSummarizeTotals(t *testing.T) {
	summary := SummarizeTotals(map[string]float64{"A": 13, "B": 8})
	assert.Equal(t, Summary{Highest: 13, Lowest: 8, Average: 10.5}, summary)

	assert.Equal(t, Summary{}, SummarizeTotals(nil), "Empty input should be all zeros")
}

func TestUnusablePricesAreIgnored(t *testing.T) {
	products := []models.ComparisonProduct{
		{Name: "Milk", Quantity: 3, Prices: map[string]float64{"A": 0, "B": -1, "C": math.NaN()}},
		{Name: "Bread", Quantity: 1, Prices: map[string]float64{"A": 1.1}},
	}
	stores := []models.Store{{ID: "A"}, {ID: "B"}, {ID: "C"}}

	totals := CalculateTotalsByStore(products, stores)
	assert.Equal(t, 1.1, totals["A"])
	assert.Equal(t, 0.0, totals["B"])
	assert.Equal(t, 0.0, totals["C"])
	assert.Equal(t, 1.1, CalculateOptimalTotal(products, stores))
}

func TestRoundingAtBoundary(t *testing.T) {
	products := []models.ComparisonProduct{
		{Name: "Egg", Quantity: 3, Prices: map[string]float64{"A": 0.1}},
		{Name: "Salt", Quantity: 1, Prices: map[string]float64{"A": 0.2}},
	}
	stores := []models.Store{{ID: "A"}}

	assert.Equal(t, 0.5, CalculateTotalsByStore(products, stores)["A"])
}

func TestAnalyze(t *testing.T) {
	products, stores := basket()
	products = append(products, models.ComparisonProduct{Name: "Saffron", Quantity: 1, Prices: map[string]float64{}})

	report := Analyze(products, stores)

	assert.Equal(t, 11.0, report.OptimalTotal)
	assert.Equal(t, 2.0, report.Savings)
	assert.Equal(t, []string{"Saffron"}, report.Unresolved)
	assert.Len(t, report.BestPrices, 3)
	assert.Equal(t, "B", report.BestPrices[0].StoreID)
	assert.Equal(t, 8.0, report.BestPrices[0].Total)
	assert.Equal(t, "A", report.BestPrices[1].StoreID)
	assert.False(t, report.BestPrices[2].Resolved)
}
