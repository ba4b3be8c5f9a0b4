package models

import "time"

// SalesRow is one input record for the KPI pipeline. TotalSales is carried
// as given in the source file; it is not recomputed from quantity and price.
type SalesRow struct {
	Date         time.Time
	ProductID    string
	ProductName  string
	Category     string
	QuantitySold int
	PricePerUnit float64
	TotalSales   float64
}
