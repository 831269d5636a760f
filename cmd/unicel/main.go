// Command unicel runs the unit-aware spreadsheet engine: an MCP server
// over stdio, a one-way xlsx exporter, and a one-shot unit converter.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jacksodj/unicel/engine"
	"github.com/jacksodj/unicel/export"
	"github.com/jacksodj/unicel/mcpserver"
)

func main() {
	log.SetPrefix("unicel: ")
	log.SetFlags(0)

	root := &cobra.Command{
		Use:          "unicel",
		Short:        "Unit-aware spreadsheet calculation engine",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), exportCmd(), convertCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbook over MCP on stdio",
		Long: "Serves MCP tools over stdio. Configuration comes from the\n" +
			"environment: UNICEL_WORKBOOK (document path), UNICEL_AUTOSAVE.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := mcpserver.ParseEnv()
			if err != nil {
				return err
			}
			server, err := mcpserver.New(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Serve(ctx)
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export <workbook.json>",
		Short: "Export a workbook document to xlsx",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wb, err := engine.LoadFile(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".xlsx"
			}
			if err := export.ToXlsxFile(wb, out); err != nil {
				return err
			}
			log.Printf("exported %s to %s", args[0], out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output xlsx path (default: <input>.xlsx)")
	return cmd
}

func convertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert <value> <from> <to>",
		Short: "Convert a magnitude between compatible units",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}

			registry := engine.NewUnitRegistry()
			converter := engine.NewConverter(registry, engine.NewRateTable())
			from, err := registry.ParseUnit(args[1])
			if err != nil {
				return err
			}
			to, err := registry.ParseUnit(args[2])
			if err != nil {
				return err
			}
			converted, err := converter.Convert(value, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s\n", strconv.FormatFloat(converted, 'g', -1, 64), to.Symbol())
			return nil
		},
	}
}
