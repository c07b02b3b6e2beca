package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	serviceURL string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "scrapectl [file]",
		Short:   "Upload a spreadsheet of URLs and download the scraped result",
		Version: version,
		Long: `scrapectl sends an Excel file to the scraping service, runs the scrape
and lets you download the generated spreadsheet. Without a subcommand it
opens an interactive form; the optional file argument is pre-selected.`,
		Example: `  # Interactive form
  scrapectl urls.xlsx

  # Non-interactive run, saving the result into the downloads directory
  scrapectl run urls.xlsx --download

  # Show the last 10 runs
  scrapectl history --limit 10`,
		Args:         cobra.MaximumNArgs(1),
		RunE:         runInteractive,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: sheetscrape.yaml next to the executable)")
	rootCmd.PersistentFlags().StringVar(&serviceURL, "service", "", "Scraping service base URL for this invocation")

	rootCmd.AddCommand(newRunCmd(), newHistoryCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
