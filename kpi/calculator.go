package kpi

import (
	"sort"
	"time"

	"retailpulse/models"
)

// DefaultTopN is the product ranking length when none is configured.
const DefaultTopN = 10

// CategoryRevenue is one revenue-by-category entry, ordered by descending
// revenue in Summary.
type CategoryRevenue struct {
	Category string
	Revenue  float64
}

// ProductQuantity is one top-products entry, ordered by descending summed
// quantity.
type ProductQuantity struct {
	ProductID   string
	ProductName string
	Quantity    int
}

// TrendPoint is one point on the chronological sales trend.
type TrendPoint struct {
	Date    time.Time
	Revenue float64
}

// CategorySummary carries the per-category aggregates for the report table.
type CategorySummary struct {
	Category             string
	Revenue              float64
	Quantity             int
	Products             int
	AvgUnitPrice         float64
	AvgRevenuePerProduct float64
}

// Summary is the full set of computed metrics for one report run.
type Summary struct {
	RowCount          int
	TotalRevenue      float64
	AverageOrderValue float64
	RevenueByCategory []CategoryRevenue
	TopProducts       []ProductQuantity
	SalesTrend        []TrendPoint
	Categories        []CategorySummary
}

// Calculate computes every metric from the loaded table. Each metric is an
// independent pass over the same immutable rows; an empty table yields
// zero-valued metrics rather than an error.
func Calculate(t Table, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}

	return Summary{
		RowCount:          len(t.Rows),
		TotalRevenue:      totalRevenue(t.Rows),
		AverageOrderValue: averageOrderValue(t.Rows),
		RevenueByCategory: revenueByCategory(t.Rows),
		TopProducts:       topProducts(t.Rows, topN),
		SalesTrend:        salesTrend(t.Rows),
		Categories:        categorySummaries(t.Rows),
	}
}

func totalRevenue(rows []models.SalesRow) float64 {
	var total float64
	for _, row := range rows {
		total += row.TotalSales
	}
	return total
}

func averageOrderValue(rows []models.SalesRow) float64 {
	if len(rows) == 0 {
		return 0
	}
	return totalRevenue(rows) / float64(len(rows))
}

func revenueByCategory(rows []models.SalesRow) []CategoryRevenue {
	byCategory := make(map[string]float64)
	for _, row := range rows {
		byCategory[row.Category] += row.TotalSales
	}

	out := make([]CategoryRevenue, 0, len(byCategory))
	for category, revenue := range byCategory {
		out = append(out, CategoryRevenue{Category: category, Revenue: revenue})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func topProducts(rows []models.SalesRow, n int) []ProductQuantity {
	type product struct {
		name     string
		quantity int
	}
	byID := make(map[string]*product)
	for _, row := range rows {
		p := byID[row.ProductID]
		if p == nil {
			p = &product{name: row.ProductName}
			byID[row.ProductID] = p
		}
		p.quantity += row.QuantitySold
	}

	out := make([]ProductQuantity, 0, len(byID))
	for id, p := range byID {
		out = append(out, ProductQuantity{ProductID: id, ProductName: p.name, Quantity: p.quantity})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		return out[i].ProductID < out[j].ProductID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func salesTrend(rows []models.SalesRow) []TrendPoint {
	byDate := make(map[time.Time]float64)
	for _, row := range rows {
		day := row.Date.Truncate(24 * time.Hour)
		byDate[day] += row.TotalSales
	}

	out := make([]TrendPoint, 0, len(byDate))
	for date, revenue := range byDate {
		out = append(out, TrendPoint{Date: date, Revenue: revenue})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func categorySummaries(rows []models.SalesRow) []CategorySummary {
	type accum struct {
		revenue  float64
		quantity int
		priceSum float64
		rowCount int
		products map[string]struct{}
	}
	byCategory := make(map[string]*accum)
	for _, row := range rows {
		a := byCategory[row.Category]
		if a == nil {
			a = &accum{products: make(map[string]struct{})}
			byCategory[row.Category] = a
		}
		a.revenue += row.TotalSales
		a.quantity += row.QuantitySold
		a.priceSum += row.PricePerUnit
		a.rowCount++
		a.products[row.ProductID] = struct{}{}
	}

	out := make([]CategorySummary, 0, len(byCategory))
	for category, a := range byCategory {
		summary := CategorySummary{
			Category: category,
			Revenue:  a.revenue,
			Quantity: a.quantity,
			Products: len(a.products),
		}
		if a.rowCount > 0 {
			summary.AvgUnitPrice = a.priceSum / float64(a.rowCount)
		}
		if len(a.products) > 0 {
			summary.AvgRevenuePerProduct = a.revenue / float64(len(a.products))
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].Category < out[j].Category
	})
	return out
}
