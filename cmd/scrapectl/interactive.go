package main

import (
	"github.com/sheetscrape/console/internal/tui"
	"github.com/spf13/cobra"
)

func runInteractive(cmd *cobra.Command, args []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	downloads, err := a.downloads()
	if err != nil {
		return err
	}

	opts := tui.Options{
		Downloader: a.client,
		Downloads:  downloads,
		Logger:     a.logger,
	}
	if len(args) == 1 {
		opts.InitialPath = args[0]
	}

	m := tui.New(cmd.Context(), a.newController(), opts)
	return tui.Run(m)
}
