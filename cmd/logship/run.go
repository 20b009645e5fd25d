package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szibis/logship/internal/config"
)

type runFlags struct {
	configPath     string
	token          string
	typ            string
	listenerURL    string
	queueDir       string
	metricsAddress string
	inMemory       bool
	debug          bool
}

func newRunCmd() *cobra.Command {
	var f *runFlags

	cmd := &cobra.Command{
		Use:   "run [flags]",
		Short: "Read log lines from the configured sources and ship them",
		Long: `Read log lines from files or standard input, format each one as a JSON
record and ship it through a per-type sender.

Without --config a single sender reading standard input is built from flags
and LOGSHIP_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *f, os.LookupEnv)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return newAgent(cfg, os.Stdin).run(ctx)
		},
	}

	f = bindRunFlags(cmd)
	return cmd
}

// bindRunFlags registers the run flags on cmd. Sender flags act like their
// LOGSHIP_* variables and take precedence over them.
func bindRunFlags(cmd *cobra.Command) *runFlags {
	f := &runFlags{}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	cmd.Flags().StringVar(&f.token, "token", "", "account token (env LOGSHIP_TOKEN)")
	cmd.Flags().StringVar(&f.typ, "type", "", "stream type (env LOGSHIP_TYPE)")
	cmd.Flags().StringVar(&f.listenerURL, "listener-url", "", "listener base URL (env LOGSHIP_LISTENER_URL)")
	cmd.Flags().StringVar(&f.queueDir, "queue-dir", "", "base directory of the disk queues (env LOGSHIP_QUEUE_DIR)")
	cmd.Flags().StringVar(&f.metricsAddress, "metrics-address", "", "metrics and health listen address (empty disables the server)")
	cmd.Flags().BoolVar(&f.inMemory, "in-memory-queue", false, "buffer in memory instead of on disk")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "log sender debug messages")
	return f
}

// loadConfig layers the file, the environment and the flags, in that order.
func loadConfig(cmd *cobra.Command, f runFlags, env func(string) (string, bool)) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath != "" {
		cfg, err = config.Load(f.configPath)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	lookup := func(key string) (string, bool) {
		switch {
		case key == config.EnvType && flags.Changed("type"):
			return f.typ, true
		case key == config.EnvToken && flags.Changed("token"):
			return f.token, true
		case key == config.EnvListenerURL && flags.Changed("listener-url"):
			return f.listenerURL, true
		case key == config.EnvQueueDir && flags.Changed("queue-dir"):
			return f.queueDir, true
		case key == config.EnvMetricsAddress && flags.Changed("metrics-address"):
			return f.metricsAddress, true
		}
		return env(key)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}

	for i := range cfg.Senders {
		if flags.Changed("in-memory-queue") {
			cfg.Senders[i].InMemoryQueue = f.inMemory
		}
		if flags.Changed("debug") {
			cfg.Senders[i].Debug = f.debug
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
