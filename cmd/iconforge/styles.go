package main

import (
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/iconforge/iconforge/pkg/style"
)

func newStylesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the built-in icon styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeStylesTable(os.Stdout, style.All())
		},
	}
}

func writeStylesTable(w io.Writer, templates []style.Template) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "Name", "Template"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var data [][]string
	for _, t := range templates {
		data = append(data, []string{strconv.Itoa(int(t.ID)), t.Name, t.Text})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
