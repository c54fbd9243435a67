package mcp

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iconforge/iconforge/pkg/models"
	"github.com/iconforge/iconforge/pkg/style"
)

func formatGeneration(resp *models.GenerationResponse) string {
	var b strings.Builder
	name := "unknown"
	if tmpl, err := style.Resolve(style.ID(resp.StyleID)); err == nil {
		name = tmpl.Name
	}
	fmt.Fprintf(&b, "Style %d (%s)\n", resp.StyleID, name)
	for i, icon := range resp.Icons {
		fmt.Fprintf(&b, "%d. %s\n   image:  %s\n   prompt: %s\n", i+1, icon.Item, icon.ImageURL, icon.Prompt)
	}
	return b.String()
}

func formatStyles(templates []style.Template) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-3s %-12s %s\n", "ID", "Name", "Template")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, t := range templates {
		fmt.Fprintf(&b, "%-3d %-12s %s\n", t.ID, t.Name, t.Text)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Expansion Cache (%s)\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Backend, stats.Entries, stats.Hits, stats.Misses, hitRate)
}

func formatSummary(rows []models.GenerationSummary) string {
	if len(rows) == 0 {
		return "No generation history found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-10s %8s %10s %12s\n", "Style", "Outcome", "Requests", "Cache Hits", "Avg Latency")
	b.WriteString(strings.Repeat("-", 50) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-6d %-10s %8d %10d %10.0fms\n",
			r.StyleID, r.Outcome, r.RequestCount, r.CacheHits, r.AvgLatencyMs)
	}
	return b.String()
}

func formatRecords(recs []models.GenerationRecord) string {
	if len(recs) == 0 {
		return "No recent requests."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-24s %-6s %-10s %-6s %8s  %s\n",
		"Time", "Topic", "Style", "Outcome", "Cache", "Latency", "Error")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, r := range recs {
		cacheCol := "miss"
		if r.CacheHit {
			cacheCol = "hit"
		}
		fmt.Fprintf(&b, "%-20s %-24s %-6d %-10s %-6s %6dms  %s\n",
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			truncate(r.Topic, 24), r.StyleID, r.Outcome, cacheCol, r.LatencyMs, truncate(r.Error, 60))
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	n -= 3
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
