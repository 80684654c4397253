package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/extractor"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/logging"
	"Go2FlowMeter/internal/watcher"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "fm-extractor",
		Short:         "Extract per-flow features from capture files into CSV",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	addConfigFlag(root.PersistentFlags())
	root.AddCommand(extractCmd(), watchCmd(), featuresCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("fm-extractor: %v", err)
	}
}

func addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the configuration file")
}

// load reads the configuration, validates it against the catalogue and configures logging.
func load() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(func(k string) bool { _, ok := features.ByKey(k); return ok }); err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <capture>...",
		Short: "Process capture files once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ex, err := extractor.New(cfg.Extractor)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			for _, path := range args {
				results, err := ex.Run(ctx, path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				for _, r := range results {
					log.WithFields(log.Fields{
						"profile": r.Profile,
						"rows":    r.Rows,
						"closed":  r.Closed,
					}).Infof("Wrote %s", r.Path)
				}
			}
			return nil
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the source directory and process new capture files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.Watcher.SourceDir == "" {
				return fmt.Errorf("watcher.source_dir is not set")
			}
			interval, err := cfg.Watcher.Interval()
			if err != nil {
				return err
			}
			ex, err := extractor.New(cfg.Extractor)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			w := watcher.New(cfg.Watcher.SourceDir, cfg.Watcher.ProcessedDir, interval, func(ctx context.Context, path string) error {
				_, err := ex.Run(ctx, path)
				return err
			})
			return w.Run(ctx)
		},
	}
}

func featuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the feature catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tABBR\tNUMERIC")
			for _, f := range features.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", f.Key, f.Name, f.Abbr, f.Numeric)
			}
			return tw.Flush()
		},
	}
}
