package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/possync/internal/cliconfig"
	"github.com/bft-labs/possync/pkg/log"
	"github.com/bft-labs/possync/pkg/possync"
	"github.com/bft-labs/possync/plugins/credwatcher"
)

const longHelp = `Queue point-of-sale transactions locally and sync them to the tenant
service whenever the terminal is online.

Sales are written to a local SQLite file before anything touches the network.
A background engine drains the queue on startup, on a fixed interval and on
every reconnect. The browser UI talks to the local HTTP bridge for enqueueing,
catalog and cart storage, and a live sync-status stream.`

var exampleUsage = strings.TrimSpace(`
  possync --service-url https://tenant.example.com --api-key KEY --api-secret SECRET
  possync --config $HOME/.possync/config.toml --once
  possync pending
  echo '{"total":500}' | possync enqueue --id sale-42 -
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the parsed configuration shared by all commands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	stderr  io.Writer
}

func main() {
	root := newRootCommand(&cli{cfg: cliconfig.DefaultConfig(), stderr: os.Stderr})
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "possync: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "possync",
		Short:         "Offline-first transaction queue and sync daemon for POS terminals",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := c.load(cmd)
			if err != nil {
				return err
			}
			return c.runDaemon(logger)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgPath, "config", "", "path to config file (default: $HOME/.possync/config.toml)")
	flags.StringVar(&c.cfg.DBPath, "db-path", c.cfg.DBPath, "SQLite database file")
	flags.StringVar(&c.cfg.LogBackend, "log-backend", c.cfg.LogBackend, "log backend: zerolog, zap or noop")
	flags.StringVar(&c.cfg.LogFormat, "log-format", c.cfg.LogFormat, "log format: console or json")
	flags.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level: debug, info, warn or error")
	flags.BoolVar(&c.cfg.AssumeOnline, "assume-online", c.cfg.AssumeOnline, "treat the terminal as online until told otherwise")

	root.Flags().StringVar(&c.cfg.ServiceURL, "service-url", c.cfg.ServiceURL, "tenant service base URL")
	root.Flags().StringVar(&c.cfg.SubmitPath, "submit-path", c.cfg.SubmitPath, "transaction creation path on the tenant service")
	root.Flags().StringVar(&c.cfg.APIKey, "api-key", c.cfg.APIKey, "tenant API key")
	root.Flags().StringVar(&c.cfg.APISecret, "api-secret", c.cfg.APISecret, "tenant API secret")
	root.Flags().StringVar(&c.cfg.CredentialsFile, "credentials-file", c.cfg.CredentialsFile, "TOML file with api_key/api_secret, reloaded on change")
	root.Flags().DurationVar(&c.cfg.SyncInterval, "sync-interval", c.cfg.SyncInterval, "interval between sync passes")
	root.Flags().DurationVar(&c.cfg.SubmitTimeout, "submit-timeout", c.cfg.SubmitTimeout, "timeout for one submission")
	root.Flags().DurationVar(&c.cfg.HTTPTimeout, "timeout", c.cfg.HTTPTimeout, "HTTP client timeout")
	root.Flags().StringVar(&c.cfg.ProbeAddr, "probe-addr", c.cfg.ProbeAddr, "host:port dialed to detect connectivity (optional)")
	root.Flags().DurationVar(&c.cfg.ProbeInterval, "probe-interval", c.cfg.ProbeInterval, "connectivity probe interval")
	root.Flags().DurationVar(&c.cfg.ProbeTimeout, "probe-timeout", c.cfg.ProbeTimeout, "connectivity probe timeout")
	root.Flags().StringVar(&c.cfg.ListenAddr, "listen", c.cfg.ListenAddr, `local bridge address ("off" to disable)`)
	root.Flags().BoolVar(&c.cfg.Once, "once", c.cfg.Once, "run one sync pass and exit")

	root.AddCommand(c.pendingCommand(), c.statusCommand(), c.enqueueCommand())
	return root
}

// load applies file, env and flag configuration, in that order of
// increasing precedence, and builds the logger.
func (c *cli) load(cmd *cobra.Command) (log.Logger, error) {
	cfgFile := c.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, changed); err != nil {
			return nil, err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, changed); err != nil {
		return nil, err
	}

	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cliconfig.Logger(c.cfg, c.stderr)
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration", log.Any("config", c.cfg.Masked()))
	return logger, nil
}

func (c *cli) newService(logger log.Logger) (*possync.Service, error) {
	libCfg := possync.Config{
		DBPath:          c.cfg.DBPath,
		ServiceURL:      c.cfg.ServiceURL,
		SubmitPath:      c.cfg.SubmitPath,
		APIKey:          c.cfg.APIKey,
		APISecret:       c.cfg.APISecret,
		CredentialsFile: c.cfg.CredentialsFile,
		SyncInterval:    c.cfg.SyncInterval,
		SubmitTimeout:   c.cfg.SubmitTimeout,
		HTTPTimeout:     c.cfg.HTTPTimeout,
		AssumeOnline:    c.cfg.AssumeOnline,
		ProbeAddr:       c.cfg.ProbeAddr,
		ProbeInterval:   c.cfg.ProbeInterval,
		ProbeTimeout:    c.cfg.ProbeTimeout,
		ListenAddr:      c.cfg.ListenAddr,
	}

	opts := []possync.Option{possync.WithLogger(logger)}
	if c.cfg.CredentialsFile != "" {
		opts = append(opts, credwatcher.WithDefaultCredentialsWatcher())
	}

	svc, err := possync.New(libCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	return svc, nil
}

func (c *cli) runDaemon(logger log.Logger) error {
	gin.SetMode(gin.ReleaseMode)

	svc, err := c.newService(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close store", log.Err(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.cfg.Once {
		return c.syncOnce(ctx, svc, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start possync: %w", err)
	}

	// A crashed worker cancels the others; watch for it so the process
	// exits instead of idling.
	crashed := make(chan struct{})
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if svc.Status() == possync.StateCrashed {
					close(crashed)
					return
				}
			}
		}
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, stopping", log.String("signal", sig.String()))
	case <-crashed:
		logger.Error("possync crashed")
		return errors.New("service crashed")
	}

	if err := svc.Stop(); err != nil {
		return fmt.Errorf("stop possync: %w", err)
	}
	return nil
}

func (c *cli) syncOnce(ctx context.Context, svc *possync.Service, logger log.Logger) error {
	if err := svc.Open(ctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	res, err := svc.SyncOnce(ctx)
	if errors.Is(err, possync.ErrOffline) {
		logger.Warn("offline, nothing synced")
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	logger.Info("sync pass complete",
		log.Int("attempted", res.Attempted),
		log.Int("synced", res.Synced),
		log.Int("failed", res.Failed),
		log.Duration("duration", res.Duration))
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d transactions failed to sync", res.Failed, res.Attempted)
	}
	return nil
}
