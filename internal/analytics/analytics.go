package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"coffeeleaf/internal/history"
)

// HistoryStats is the aggregate view of a scan history.
type HistoryStats struct {
	TotalScans     int            `json:"totalScans"`
	HealthyTrees   int            `json:"healthyTrees"`
	DiseasedTrees  int            `json:"diseasedTrees"`
	NotCoffeeTrees int            `json:"notCoffeeTrees"`
	Diseases       map[string]int `json:"diseases"`

	// order of disease buckets as first seen, for stable presentation
	order []string
}

// ComputeStats aggregates records by category and disease bucket. Every
// record lands in exactly one category, and every diseased record in
// exactly one bucket.
func ComputeStats(records []history.ScanRecord, catalog *history.Catalog) HistoryStats {
	if catalog == nil {
		catalog = history.DefaultCatalog()
	}
	stats := HistoryStats{
		TotalScans: len(records),
		Diseases:   make(map[string]int),
	}

	for _, rec := range records {
		category, disease := rec.Tags(catalog)
		switch category {
		case history.CategoryHealthy:
			stats.HealthyTrees++
		case history.CategoryNotCoffee:
			stats.NotCoffeeTrees++
		default:
			stats.DiseasedTrees++
			if disease == "" {
				disease = catalog.Fallback
			}
			if _, seen := stats.Diseases[disease]; !seen {
				stats.order = append(stats.order, disease)
			}
			stats.Diseases[disease]++
		}
	}

	return stats
}

// DiseaseOrder returns disease buckets in the order they first appeared.
func (hs HistoryStats) DiseaseOrder() []string {
	if len(hs.order) == len(hs.Diseases) {
		return append([]string(nil), hs.order...)
	}
	// decoded from JSON, order unknown
	out := make([]string, 0, len(hs.Diseases))
	for name := range hs.Diseases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HealthyRatio returns the share of coffee-leaf scans that were healthy.
func (hs HistoryStats) HealthyRatio() float64 {
	leaves := hs.HealthyTrees + hs.DiseasedTrees
	if leaves == 0 {
		return 0
	}
	return float64(hs.HealthyTrees) / float64(leaves)
}

// GenerateReportSummary renders the stats as Vietnamese plain text, used both
// for display and as the LLM prompt body.
func (hs HistoryStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, `Thống kê lịch sử quét lá cà phê:

Tổng quan:
- Tổng số lần quét: %d
- Cây khoẻ: %d
- Cây bị bệnh: %d
- Không phải lá cà phê: %d

`, hs.TotalScans, hs.HealthyTrees, hs.DiseasedTrees, hs.NotCoffeeTrees)

	if len(hs.Diseases) > 0 {
		b.WriteString("Phân loại bệnh:\n")
		for _, name := range hs.DiseaseOrder() {
			fmt.Fprintf(&b, "- %s: %d lần\n", name, hs.Diseases[name])
		}
		b.WriteString("\n")
	}

	if hs.HealthyTrees+hs.DiseasedTrees > 0 {
		fmt.Fprintf(&b, "Tỷ lệ cây khoẻ: %.0f%%\n", hs.HealthyRatio()*100)
	}

	return b.String()
}

// ToJSON returns the indented JSON form.
func (hs HistoryStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(hs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
