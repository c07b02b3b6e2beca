package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sheetscrape/console/internal/controller"
	"github.com/sheetscrape/console/internal/models"
	"github.com/sheetscrape/console/internal/render"
	"github.com/sheetscrape/console/internal/storage"
	"github.com/sheetscrape/console/internal/tui"
	"github.com/spf13/cobra"
)

var errRunFailed = errors.New("run failed")

func newRunCmd() *cobra.Command {
	var download bool

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Upload and scrape a file without the interactive form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()

			var downloads storage.Store
			if download {
				store, err := a.downloads()
				if err != nil {
					return err
				}
				downloads = store
			}
			return runPlain(cmd.Context(), a.newController(), args[0], cmd.OutOrStdout(), a.client, downloads)
		},
	}
	cmd.Flags().BoolVarP(&download, "download", "d", false, "Save the generated file into the downloads directory")
	return cmd
}

// runPlain selects path, runs the sequence and prints one line per view change.
// With a downloads store the artifact is fetched after a successful run.
func runPlain(ctx context.Context, ctrl *controller.Controller, path string, out io.Writer, dl tui.Downloader, downloads storage.Store) error {
	var last string
	show := func(v models.View) {
		line := render.Line(v)
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
	}
	cancel := ctrl.Subscribe(show)
	defer cancel()

	file, err := models.SelectPath(path)
	if err != nil {
		return err
	}
	if err := ctrl.SelectFile(file); err != nil {
		return err
	}

	if _, err := ctrl.Submit(ctx); err != nil {
		return fmt.Errorf("%w: %v", errRunFailed, err)
	}

	v := ctrl.View()
	if downloads == nil || v.Download == nil {
		return nil
	}

	var buf bytes.Buffer
	if _, err := dl.Download(ctx, v.Download.Name, &buf); err != nil {
		return err
	}
	info, err := downloads.Save(v.Download.Name, models.FileKindDownloaded, &buf)
	if err != nil {
		return err
	}
	path, err = downloads.GetFilePath(info.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "saved %s (%d bytes)\n", path, info.Size)
	return nil
}
