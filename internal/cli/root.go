// Package cli implements the pkgctl command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/uniquestream/packagekit/pkg/catalog"
	"github.com/uniquestream/packagekit/pkg/config"
	"github.com/uniquestream/packagekit/pkg/install"
	"github.com/uniquestream/packagekit/pkg/ledger"
	"github.com/uniquestream/packagekit/pkg/logging"
	"github.com/uniquestream/packagekit/pkg/transport"
)

// app holds what the commands of one invocation share.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

// NewRootCommand builds the pkgctl command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "pkgctl",
		Short: "Install and verify host plugin and scene packages",
		Long: `pkgctl downloads packages from the package portal, verifies them
against their declared sha256 and signature, and installs them so that a
failed install never leaves a broken plugin behind.

It also manages which host modules load at startup.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./packagekit.yaml or ~/.packagekit/packagekit.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (json, console)")

	_ = a.v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(
		newVersionCommand(),
		newCompareCommand(),
		newHashCommand(),
		newManifestCommand(a),
		newCatalogCommand(a),
		newLoginCommand(a),
		newInstallCommand(a),
		newInstalledCommand(a),
		newUninstallCommand(a),
		newModulesCommand(a),
	)
	return rootCmd
}

// Execute runs pkgctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// init reads the config file and environment and builds the logger.
func (a *app) init() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".packagekit"))
		}
		a.v.SetConfigName("packagekit")
		a.v.SetConfigType("yaml")
	}

	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	if used := a.v.ConfigFileUsed(); used != "" {
		logger.Debug("Using config file", zap.String("path", used))
	}
	return nil
}

// fetcher builds the HTTP transport from the transport settings. The caller
// closes it.
func (a *app) fetcher() *transport.HTTPFetcher {
	t := a.cfg.Transport
	return transport.NewHTTPFetcher(
		transport.WithTimeout(t.Timeout),
		transport.WithMaxRetries(t.MaxRetries),
		transport.WithBaseDelay(t.BaseDelay),
		transport.WithUserAgent(t.UserAgent),
		transport.WithMaxBodyBytes(t.MaxBodyBytes),
		transport.WithRateLimit(t.RateLimit, t.RateBurst),
	)
}

func (a *app) client(t catalog.Transport) *catalog.Client {
	return catalog.NewClient(a.cfg.API(), t, a.logger.Named("catalog"))
}

func (a *app) ledger() (*ledger.Ledger, error) {
	l := ledger.New(a.cfg.LedgerFile())
	if err := l.Load(); err != nil {
		return nil, err
	}
	return l, nil
}

// service wires both installers to one ledger and statistics collector.
func (a *app) service(f install.Fetcher) (*install.Service, error) {
	l, err := a.ledger()
	if err != nil {
		return nil, err
	}
	stats := install.NewStatistics()
	logger := a.logger.Named("install")

	plugins := install.NewPluginInstaller(f, a.cfg.Paths.PluginsRoot, a.cfg.Paths.TempDir,
		install.WithLedger(l),
		install.WithStatistics(stats),
		install.WithLogger(logger))
	scenes := install.NewSceneInstaller(f, a.cfg.Paths.ScenesRoot, a.cfg.Host.Version,
		install.WithSceneLedger(l),
		install.WithSceneStatistics(stats),
		install.WithSceneLogger(logger))

	return install.NewService(plugins, scenes, l, a.cfg.Host.Version), nil
}

// logStats reports the install counters of a finished command at debug level.
func (a *app) logStats(svc *install.Service) {
	st := svc.View().Stats
	a.logger.Debug("Install statistics",
		zap.Int("attempted", st.Attempted),
		zap.Int("committed", st.Committed),
		zap.Int("integrity_failures", st.IntegrityFailures),
		zap.Int("rolled_back", st.RolledBack),
		zap.Int("fatal", st.Fatal),
		zap.Int("scenes_installed", st.ScenesInstalled),
		zap.Int("resources_downloaded", st.ResourcesDownloaded),
		zap.Int64("bytes_downloaded", st.BytesDownloaded))
}

// truncateString shortens s to maxLen bytes, ending in "..." when there is
// room for it.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
