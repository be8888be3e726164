// Package pages renders the run report as a static HTML page.
package pages

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/shopspring/decimal"

	"github.com/autoclaim/autoclaim/internal/catalog"
	"github.com/autoclaim/autoclaim/internal/models"
	"github.com/autoclaim/autoclaim/internal/report"
	"github.com/autoclaim/autoclaim/internal/store"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var bucketTitles = map[catalog.BucketLabel]string{
	catalog.BucketUnder10: "💵 超值优惠 (<10元)",
	catalog.Bucket10To20:  "💰 实惠套餐 (10-20元)",
	catalog.BucketFrom20:  "🌟 豪华组合 (≥20元)",
}

var statusLabels = map[models.ClaimStatus]string{
	models.ClaimStatusPending: "待领取",
	models.ClaimStatusClaimed: "已领取",
	models.ClaimStatusFailed:  "领取失败",
	models.ClaimStatusSkipped: "已跳过",
}

var indexTemplate = template.Must(template.New("index.html.tmpl").Funcs(template.FuncMap{
	"bucketTitle": func(l catalog.BucketLabel) string { return bucketTitles[l] },
	"statusLabel": func(s models.ClaimStatus) string { return statusLabels[s] },
	"price":       func(d decimal.Decimal) string { return d.StringFixed(1) },
}).ParseFS(templateFS, "templates/index.html.tmpl"))

// Render returns the page for r.
func Render(r report.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render index page: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders r and atomically replaces the page at path.
func Write(path string, r report.RunReport) error {
	page, err := Render(r)
	if err != nil {
		return err
	}
	return store.WriteFileAtomic(path, page, 0o644)
}
