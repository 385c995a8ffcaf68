package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-media-relay/internal/config"
	"github.com/withObsrvr/obsrvr-media-relay/internal/events"
	"github.com/withObsrvr/obsrvr-media-relay/internal/logging"
	"github.com/withObsrvr/obsrvr-media-relay/internal/metrics"
	"github.com/withObsrvr/obsrvr-media-relay/internal/notify"
	"github.com/withObsrvr/obsrvr-media-relay/internal/player"
	"github.com/withObsrvr/obsrvr-media-relay/internal/source"
	"github.com/withObsrvr/obsrvr-media-relay/internal/storage"
	"github.com/withObsrvr/obsrvr-media-relay/internal/transfer"
)

// errFailed signals a command that already reported its failure.
var errFailed = errors.New("one or more transfers failed")

// newRootCmd builds the command tree. The returned func releases whatever the
// command opened and must run after Execute.
func newRootCmd() (*cobra.Command, func()) {
	var (
		configPath string
		a          *app
	)

	root := &cobra.Command{
		Use:          "media-relay",
		Short:        "Relay media into object storage and hand out playable links",
		Version:      fmt.Sprintf("%s (%s)", transfer.Version, transfer.GitSHA),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
			if cfg.Metrics.Enabled {
				metrics.Init(cfg.Metrics.Namespace)
			}
			events.Producer.Version = transfer.Version

			a, err = newApp(cfg)
			return err
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	appFn := func() *app { return a }
	root.AddCommand(
		newServeCmd(appFn),
		newUploadCmd(appFn),
		newShareCmd(appFn),
		newListCmd(appFn),
		newDeleteCmd(appFn),
		newFetchCmd(appFn),
	)
	return root, func() {
		if a != nil {
			a.Close()
		}
	}
}

func newServeCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the web player, health check and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			cfg := a.cfg

			var opts []player.Option
			if cfg.Storage.Backend == "local" && cfg.Storage.SignSecret != "" {
				signer, err := storage.NewHMACSigner(cfg.Storage.SignBaseURL, cfg.Storage.SignSecret)
				if err != nil {
					return err
				}
				opts = append(opts, player.WithFiles(signer, a.blob))
			}

			srv := player.New(player.Config{
				Addr:         cfg.Server.Addr,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				ServeMetrics: cfg.Metrics.Enabled,
			}, opts...)

			slog.Info("media relay starting", "version", transfer.Version, "commit", transfer.GitSHA)
			a.registry.Start()
			defer a.registry.Stop()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return srv.Run(ctx) })
			if err := g.Wait(); err != nil {
				return err
			}
			slog.Info("media relay stopped cleanly")
			return nil
		},
	}
}

func newUploadCmd(appFn func() *app) *cobra.Command {
	var (
		owner string
		key   string
		ttl   time.Duration
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "upload <path|url>...",
		Short: "Transfer files or URLs into storage and print their links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key != "" && len(args) > 1 {
				return errors.New("--key can only be used with a single source")
			}

			var n notify.Notifier = notify.NewWriterNotifier(cmd.ErrOrStderr())
			if quiet {
				n = notify.LogNotifier{}
			}

			reqs := make([]transfer.Request, 0, len(args))
			for _, ref := range args {
				src, err := source.Open(ref)
				if err != nil {
					return fmt.Errorf("%s: %w", ref, err)
				}
				reqs = append(reqs, transfer.Request{
					Source:         src,
					DestinationKey: key,
					Owner:          owner,
					LinkTTL:        ttl,
					Notifier:       n,
				})
			}

			failed := false
			for _, res := range appFn().relay.RunAll(cmd.Context(), reqs) {
				printResult(cmd.OutOrStdout(), res)
				if !res.Stored() {
					failed = true
				}
			}
			if failed {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner recorded in the object key")
	cmd.Flags().StringVar(&key, "key", "", "explicit destination key")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "link lifetime (default from config)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "log progress instead of printing it")
	return cmd
}

func printResult(w io.Writer, res *transfer.Result) {
	fmt.Fprintf(w, "%s\t%s\t%s\n", res.Outcome, res.Name, res.Key)
	if res.Link != nil {
		fmt.Fprintf(w, "  link:   %s\n  expires: %s\n", res.Link.URL, res.Link.ExpiresAt.Format(time.RFC3339))
	}
	if res.PlayerURL != "" {
		fmt.Fprintf(w, "  player: %s\n", res.PlayerURL)
	}
	if res.ShortKey != "" {
		fmt.Fprintf(w, "  short:  %s\n", res.ShortKey)
	}
	if res.Err != nil {
		fmt.Fprintf(w, "  error:  %s\n", transfer.FailureMessage(res.Err))
	}
}

func newShareCmd(appFn func() *app) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "share <key>",
		Short: "Issue a fresh link for a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := appFn().relay.Share(cmd.Context(), args[0], ttl)
			if err != nil {
				if storage.IsNotFound(err) {
					return fmt.Errorf("file not found: %s", args[0])
				}
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s, %s)\n", s.Name, s.Kind, humanize.IBytes(uint64(s.Size)))
			fmt.Fprintf(w, "  link:    %s\n  expires: %s\n", s.Link.URL, s.Link.ExpiresAt.Format(time.RFC3339))
			if s.PlayerURL != "" {
				fmt.Fprintf(w, "  player:  %s\n", s.PlayerURL)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "link lifetime (default from config)")
	return cmd
}

func newListCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [prefix]",
		Short: "List stored objects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			objs, err := appFn().relay.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
			for _, o := range objs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Key, humanize.IBytes(uint64(o.Size)), humanize.Time(o.ModTime))
			}
			return tw.Flush()
		},
	}
}

func newDeleteCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFn().relay.Delete(cmd.Context(), args[0]); err != nil {
				if storage.IsNotFound(err) {
					return fmt.Errorf("file not found: %s", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newFetchCmd(appFn func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <key> <dest>",
		Short: "Download a stored object to a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := notify.NewWriterNotifier(cmd.ErrOrStderr())
			if _, err := appFn().relay.Fetch(cmd.Context(), args[0], args[1], n); err != nil {
				if storage.IsNotFound(err) {
					return fmt.Errorf("file not found: %s", args[0])
				}
				return err
			}
			return nil
		},
	}
}
