package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/render"

	"retailpulse/kpi"
)

// echartsAsset is the runtime the embedded chart scripts depend on.
const echartsAsset = "https://go-echarts.github.io/go-echarts-assets/assets/echarts.min.js"

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.Asset}}"></script>
<style>
body { font-family: Arial, sans-serif; max-width: 1200px; margin: 0 auto; padding: 20px; }
table { width: 100%; border-collapse: collapse; margin-top: 20px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
th { background-color: #f2f2f2; }
.notice { color: #888; font-style: italic; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Generated at {{.GeneratedAt}} from {{.RowCount}} rows.</p>
{{if .NoData}}
<p class="notice">No data: the input table contained no usable rows.</p>
{{else}}
<table>
<tr><th>Total Revenue</th><th>Average Order Value</th></tr>
<tr><td>{{printf "$%.2f" .TotalRevenue}}</td><td>{{printf "$%.2f" .AverageOrderValue}}</td></tr>
</table>
{{range .Charts}}
{{.}}
{{end}}
<h2>Top {{len .TopProducts}} Products by Quantity Sold</h2>
<table>
<tr><th>Product ID</th><th>Product Name</th><th>Quantity Sold</th></tr>
{{range .TopProducts}}
<tr><td>{{.ProductID}}</td><td>{{.ProductName}}</td><td>{{.Quantity}}</td></tr>
{{end}}
</table>
<h2>Category KPI Summary</h2>
<table>
<tr><th>Category</th><th>Total Sales</th><th>Quantity Sold</th><th>Unique Products</th><th>Avg Price per Unit</th><th>Avg Sales per Product</th></tr>
{{range .Categories}}
<tr><td>{{.Category}}</td><td>{{printf "$%.2f" .Revenue}}</td><td>{{.Quantity}}</td><td>{{.Products}}</td><td>{{printf "$%.2f" .AvgUnitPrice}}</td><td>{{printf "$%.2f" .AvgRevenuePerProduct}}</td></tr>
{{end}}
</table>
{{end}}
{{if .Skipped}}
<h2>Skipped Rows</h2>
<table>
<tr><th>Row</th><th>Column</th><th>Reason</th></tr>
{{range .Skipped}}
<tr><td>{{.Row}}</td><td>{{.Column}}</td><td>{{.Reason}}</td></tr>
{{end}}
</table>
{{end}}
</body>
</html>
`

var pageTmpl = template.Must(template.New("report").Parse(pageTemplate))

type pageData struct {
	Title             string
	Asset             string
	GeneratedAt       string
	RowCount          int
	NoData            bool
	TotalRevenue      float64
	AverageOrderValue float64
	Charts            []template.HTML
	TopProducts       []kpi.ProductQuantity
	Categories        []kpi.CategorySummary
	Skipped           []kpi.RowIssue
}

// Writer serializes one KPI summary into a single HTML artifact.
type Writer struct {
	path string
}

// NewWriter returns a report writer targeting path. Any existing file there
// is overwritten on Write.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write builds the whole document in memory and writes it in one call, so a
// failed run never leaves a half-written report behind.
func (w *Writer) Write(summary kpi.Summary, skipped []kpi.RowIssue) error {
	content, err := Render(summary, skipped)
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if err := os.WriteFile(w.path, content, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Render produces the report document without touching the filesystem.
func Render(summary kpi.Summary, skipped []kpi.RowIssue) ([]byte, error) {
	data := pageData{
		Title:             "Sales Performance Dashboard",
		Asset:             echartsAsset,
		GeneratedAt:       time.Now().Format(time.RFC3339),
		RowCount:          summary.RowCount,
		NoData:            summary.RowCount == 0,
		TotalRevenue:      summary.TotalRevenue,
		AverageOrderValue: summary.AverageOrderValue,
		TopProducts:       summary.TopProducts,
		Categories:        summary.Categories,
		Skipped:           skipped,
	}

	if !data.NoData {
		snippets := []render.ChartSnippet{
			revenueByCategoryBar(summary).Renderer.RenderSnippet(),
			quantityByCategoryBar(summary).Renderer.RenderSnippet(),
			avgUnitPriceBar(summary).Renderer.RenderSnippet(),
			salesTrendLine(summary).Renderer.RenderSnippet(),
		}
		for _, snippet := range snippets {
			data.Charts = append(data.Charts, template.HTML(snippet.Element+snippet.Script))
		}
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute report template: %w", err)
	}
	return buf.Bytes(), nil
}
