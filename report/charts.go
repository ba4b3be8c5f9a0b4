// Package report renders the KPI summary into one self-contained HTML file.
package report

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"retailpulse/kpi"
)

// Chart kinds map deterministically from metric kinds: bar charts for the
// per-category metrics, a line chart for the date trend, plain tables for
// the rankings. Chart IDs are fixed so repeated runs produce the same markup.

func revenueByCategoryBar(s kpi.Summary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{ChartID: "revenue-by-category"}),
		charts.WithTitleOpts(opts.Title{Title: "Total Sales by Category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Total Sales ($)"}),
	)

	categories := make([]string, 0, len(s.RevenueByCategory))
	values := make([]opts.BarData, 0, len(s.RevenueByCategory))
	for _, entry := range s.RevenueByCategory {
		categories = append(categories, entry.Category)
		values = append(values, opts.BarData{Value: entry.Revenue})
	}
	bar.SetXAxis(categories).AddSeries("revenue", values)
	return bar
}

func quantityByCategoryBar(s kpi.Summary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{ChartID: "quantity-by-category"}),
		charts.WithTitleOpts(opts.Title{Title: "Total Quantity Sold by Category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Units"}),
	)

	categories := make([]string, 0, len(s.Categories))
	values := make([]opts.BarData, 0, len(s.Categories))
	for _, entry := range s.Categories {
		categories = append(categories, entry.Category)
		values = append(values, opts.BarData{Value: entry.Quantity})
	}
	bar.SetXAxis(categories).AddSeries("quantity", values)
	return bar
}

func avgUnitPriceBar(s kpi.Summary) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{ChartID: "avg-unit-price"}),
		charts.WithTitleOpts(opts.Title{Title: "Average Price per Unit by Category"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Price ($)"}),
	)

	categories := make([]string, 0, len(s.Categories))
	values := make([]opts.BarData, 0, len(s.Categories))
	for _, entry := range s.Categories {
		categories = append(categories, entry.Category)
		values = append(values, opts.BarData{Value: entry.AvgUnitPrice})
	}
	bar.SetXAxis(categories).AddSeries("avg_price", values)
	return bar
}

func salesTrendLine(s kpi.Summary) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{ChartID: "sales-trend"}),
		charts.WithTitleOpts(opts.Title{Title: "Sales Trend Over Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Total Sales ($)"}),
	)

	dates := make([]string, 0, len(s.SalesTrend))
	values := make([]opts.LineData, 0, len(s.SalesTrend))
	for _, point := range s.SalesTrend {
		dates = append(dates, point.Date.Format("2006-01-02"))
		values = append(values, opts.LineData{Value: point.Revenue})
	}
	line.SetXAxis(dates).AddSeries("revenue", values)
	return line
}
