package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"keydesk/client"
	"keydesk/export"
	gos3 "keydesk/pkg/s3"
)

func newKeysCommand(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "License key operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newKeysListCommand(cfgPath))
	cmd.AddCommand(newKeysAvailableCommand(cfgPath))
	cmd.AddCommand(newKeysGenerateCommand(cfgPath))
	cmd.AddCommand(newKeysDeleteCommand(cfgPath))
	cmd.AddCommand(newKeysExportCommand(cfgPath))
	cmd.AddCommand(newKeysImportCommand(cfgPath))
	return cmd
}

func newKeysListCommand(cfgPath *string) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your purchased keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.keys.FetchMine(ctx, page, limit); err != nil {
				return friendly(err, a.keys.State().Error)
			}

			state := a.keys.State()
			pagination := client.Pagination{Page: page, Limit: limit, Total: len(state.Mine), TotalPages: 1}
			if state.Pagination != nil {
				pagination = *state.Pagination
			}
			out, err := a.render.Render("keys.tmpl", client.KeyPage{Keys: state.Mine, Pagination: pagination})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page to fetch")
	cmd.Flags().IntVar(&limit, "limit", 20, "Keys per page")
	return cmd
}

func newKeysAvailableCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "available",
		Short: "Show purchasable key stock",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.keys.FetchAvailable(ctx); err != nil {
				return friendly(err, a.keys.State().Error)
			}

			out, err := a.render.Render("available.tmpl", a.keys.State().Available)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newKeysGenerateCommand(cfgPath *string) *cobra.Command {
	var (
		game     string
		duration int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Purchase and generate a new key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.keys.Generate(ctx, game, duration); err != nil {
				return friendly(err, a.keys.State().Error)
			}

			result := a.keys.State().LastGenerated
			out, err := a.render.Render("generated.tmpl", result)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&game, "game", "", "Game the key is for")
	cmd.Flags().IntVar(&duration, "duration", 0, "Key duration in days")
	_ = cmd.MarkFlagRequired("game")
	_ = cmd.MarkFlagRequired("duration")
	return cmd
}

func newKeysDeleteCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete one of your keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}
			if err := a.keys.Delete(ctx, args[0]); err != nil {
				return friendly(err, a.keys.State().Error)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Key deleted.")
			return nil
		},
	}
}

func newKeysExportCommand(cfgPath *string) *cobra.Command {
	var (
		output   string
		s3Bucket string
		s3Key    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a signed archive of all your keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession(); err != nil {
				return err
			}
			signer, err := export.NewSignerFromEnv()
			if err != nil {
				return err
			}

			keys, err := fetchAllKeys(ctx, a.api)
			if err != nil {
				return friendly(err, client.Message(err, ""))
			}

			account := ""
			if user := a.auth.State().User; user != nil {
				account = user.Username
			}
			manifest, err := export.Build(export.BuildConfig{
				Account: account,
				Keys:    keys,
				Output:  output,
				Signer:  signer,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d keys, manifest %s)\n", output, manifest.KeyCount, manifest.ID)

			if s3Bucket != "" {
				if s3Key == "" {
					s3Key = filepath.Base(output)
				}
				if err := uploadArchive(ctx, output, s3Bucket, s3Key); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded to s3://%s/%s\n", s3Bucket, s3Key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "Destination archive file (tar.zst)")
	cmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "Optional S3 bucket to upload the archive to")
	cmd.Flags().StringVar(&s3Key, "s3-key", "", "Object key for the S3 upload (defaults to the output file name)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newKeysImportCommand(cfgPath *string) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Verify a signed key archive and show its contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := export.NewSignerFromEnv()
			if err != nil {
				return err
			}

			summary, err := export.Verify(file, signer)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Archive OK: %d keys, created %s", summary.Manifest.KeyCount, summary.Manifest.CreatedAt.Format("2006-01-02 15:04"))
			if summary.Manifest.Account != "" {
				fmt.Fprintf(out, ", account %s", summary.Manifest.Account)
			}
			fmt.Fprintln(out)

			for _, key := range summary.Keys {
				fmt.Fprintf(out, "  %-28s %-16s %3dd  %s\n", key.KeyCode, key.Game, key.Duration, key.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to the archive (tar.zst)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// fetchAllKeys pages through the account's keys until the server reports the
// last page.
func fetchAllKeys(ctx context.Context, api *client.Client) ([]client.Key, error) {
	const pageSize = 100

	var all []client.Key
	for page := 1; ; page++ {
		result, err := api.Keys(ctx, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Keys...)
		if page >= result.Pagination.TotalPages || len(result.Keys) == 0 {
			return all, nil
		}
	}
}

func uploadArchive(ctx context.Context, path, bucket, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	digest := sha256.New()
	size, err := io.Copy(digest, f)
	if err != nil {
		return fmt.Errorf("hash archive: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	s3Client, err := gos3.NewClientFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}
	if err := s3Client.PutObject(ctx, bucket, key, f, size, hex.EncodeToString(digest.Sum(nil))); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	return nil
}
