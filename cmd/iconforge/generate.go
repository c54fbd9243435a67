package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/iconforge/iconforge/pkg/icons"
	"github.com/iconforge/iconforge/pkg/models"
	"github.com/iconforge/iconforge/pkg/style"
)

func newGenerateCmd(configPath *string) *cobra.Command {
	var (
		topic   string
		styleID int
		colors  string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one icon set and print the results",
		Example: `  iconforge generate --topic Fruit --style 2 --colors "#FF5733"
  MOCK_MODE=true iconforge generate --topic Space --style 4 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.orch.Generate(ctx, models.GenerationRequest{
				Topic:   topic,
				StyleID: styleID,
				Colors:  colors,
			})
			if err != nil {
				return describeFailure(err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return writeIconTable(os.Stdout, resp)
		},
	}

	cmd.Flags().StringVarP(&topic, "topic", "t", "", "theme to expand into four icons")
	cmd.Flags().IntVarP(&styleID, "style", "s", int(style.FlatVector), "style id (see 'iconforge styles')")
	cmd.Flags().StringVar(&colors, "colors", "", "optional brand color hint")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

// describeFailure adds the failure kind and a retry hint to err.
func describeFailure(err error) error {
	kind := icons.KindOf(err)
	label := color.New(color.FgRed, color.Bold).Sprint(kind.String())
	if icons.IsRateLimited(err) {
		return fmt.Errorf("%s: %w (rate limited, retry later)", label, err)
	}
	return fmt.Errorf("%s: %w", label, err)
}

func writeIconTable(w io.Writer, resp *models.GenerationResponse) error {
	tmpl, err := style.Resolve(style.ID(resp.StyleID))
	if err != nil {
		return err
	}
	header := color.New(color.FgCyan, color.Bold)
	if _, err := header.Fprintf(w, "Style %d (%s)\n", tmpl.ID, tmpl.Name); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"#", "Item", "Image"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for i, icon := range resp.Icons {
		data = append(data, []string{strconv.Itoa(i + 1), icon.Item, icon.ImageURL})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
