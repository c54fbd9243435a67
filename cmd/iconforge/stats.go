package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/iconforge/iconforge/pkg/history"
	"github.com/iconforge/iconforge/pkg/models"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var recent int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show generation history statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			if !cfg.History.Enabled {
				return fmt.Errorf("history is disabled in the configuration")
			}

			h, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer h.Close()

			ctx := context.Background()

			if recent > 0 {
				recs, err := h.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Println("No generation history found.")
					return nil
				}
				return writeRecordsTable(os.Stdout, recs)
			}

			summaries, err := h.Summary(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No generation history found.")
				return nil
			}
			return writeSummaryTable(os.Stdout, summaries)
		},
	}

	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent requests instead of the summary")
	return cmd
}

var (
	succeededColor = color.New(color.FgGreen)
	failedColor    = color.New(color.FgRed, color.Bold)
)

func outcomeLabel(o models.Outcome) string {
	if o == models.OutcomeFailed {
		return failedColor.Sprint(string(o))
	}
	return succeededColor.Sprint(string(o))
}

func writeSummaryTable(w io.Writer, rows []models.GenerationSummary) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Style", "Outcome", "Requests", "Cache Hits", "Avg Latency"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	for _, r := range rows {
		data = append(data, []string{
			strconv.Itoa(r.StyleID),
			outcomeLabel(r.Outcome),
			strconv.Itoa(r.RequestCount),
			strconv.Itoa(r.CacheHits),
			fmt.Sprintf("%.0fms", r.AvgLatencyMs),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func writeRecordsTable(w io.Writer, recs []models.GenerationRecord) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Time", "Topic", "Style", "Outcome", "Cache", "Latency", "Error"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for _, r := range recs {
		cacheCol := "miss"
		if r.CacheHit {
			cacheCol = "hit"
		}
		data = append(data, []string{
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			r.Topic,
			strconv.Itoa(r.StyleID),
			outcomeLabel(r.Outcome),
			cacheCol,
			fmt.Sprintf("%dms", r.LatencyMs),
			r.Error,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
