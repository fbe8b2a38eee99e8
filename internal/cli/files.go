package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	vlmrun "github.com/vlm-run/vlmrun-golang"
)

// listFlags are the paging flags shared by list commands.
type listFlags struct {
	skip     int
	limit    int
	pageSize int
	filter   string
}

func (l *listFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&l.skip, "skip", 0, "number of items to skip")
	cmd.Flags().IntVarP(&l.limit, "limit", "n", 25, "maximum number of items to show (0 for all)")
	cmd.Flags().IntVar(&l.pageSize, "page-size", 0, "items requested per API call")
	cmd.Flags().StringVar(&l.filter, "filter", "", `filter expression, e.g. 'status == "completed"'`)
}

func (l *listFlags) options() vlmrun.ListOptions {
	return vlmrun.ListOptions{Skip: l.skip, Limit: l.limit, PageSize: l.pageSize, Filter: l.filter}
}

func (a *app) filesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage uploaded files",
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List uploaded files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			files, err := client.Files().List(lf.options()).Collect(cmd.Context())
			if err != nil {
				return err
			}
			return a.printFiles(files)
		},
	}
	lf.bind(list)

	var (
		purpose     string
		concurrency int
	)
	upload := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload one or more local files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			uploads := lo.Map(args, func(p string, _ int) vlmrun.FileUpload { return vlmrun.FileFromPath(p) })
			uploaded, err := client.Files().UploadManyWithContext(cmd.Context(), uploads, purpose, concurrency)
			if err != nil {
				return err
			}
			return a.printFiles(lo.Map(uploaded, func(f *vlmrun.FileResponse, _ int) vlmrun.FileResponse { return *f }))
		},
	}
	upload.Flags().StringVar(&purpose, "purpose", vlmrun.PurposeAssistants, "upload purpose: assistants, datasets or fine-tune")
	upload.Flags().IntVar(&concurrency, "concurrency", 4, "parallel uploads")

	get := &cobra.Command{
		Use:   "get <file-id>",
		Short: "Show file metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			f, err := client.Files().RetrieveWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printFiles([]vlmrun.FileResponse{*f})
		},
	}

	var out string
	download := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download file content",
		Long:  `Download file content to --out, or to the original filename in the current directory. Use --out - for stdout.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			target := out
			if target == "" {
				meta, err := client.Files().RetrieveWithContext(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				target = filepath.Base(lo.CoalesceOrEmpty(meta.Filename, args[0]))
			}
			content, err := client.Files().RetrieveContentWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if target == "-" {
				_, err := a.stdout.Write(content)
				return err
			}
			if err := os.WriteFile(target, content, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
			a.logger.Info().Str("file_id", args[0]).Str("path", target).Int("bytes", len(content)).Msg("downloaded file")
			fmt.Fprintf(a.stdout, "Saved %s (%d bytes)\n", target, len(content))
			return nil
		},
	}
	download.Flags().StringVar(&out, "out", "", "output path")

	del := &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			deleted, err := client.Files().DeleteWithContext(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printer().print(deleted, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Deleted %s\n", deleted.ID)
				return err
			})
		},
	}

	cmd.AddCommand(list, upload, get, download, del)
	return cmd
}

func (a *app) printFiles(files []vlmrun.FileResponse) error {
	p := a.printer()
	return p.print(files, func(io.Writer) error {
		rows := lo.Map(files, func(f vlmrun.FileResponse, _ int) []string {
			return []string{f.ID, f.Filename, strconv.FormatInt(f.Bytes, 10), f.Purpose, formatTime(f.CreatedAt)}
		})
		return p.table([]string{"ID", "FILENAME", "BYTES", "PURPOSE", "CREATED"}, rows)
	})
}
