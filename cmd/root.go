package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/s0up4200/qbitweb/config"
	"github.com/s0up4200/qbitweb/orphans"
	"github.com/s0up4200/qbitweb/qbittorrent"
	"github.com/s0up4200/qbitweb/server"
	"github.com/s0up4200/qbitweb/speedtest"
	"github.com/s0up4200/qbitweb/store"
	"github.com/s0up4200/qbitweb/vault"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger

	version   = "dev"
	buildTime = "unknown"
)

// SetVersion records build metadata injected by the linker.
func SetVersion(v, t string) {
	version = v
	buildTime = t
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "qbitweb",
	Short: "Management backend for multiple qBittorrent instances",
	Long: `qbitweb is the backend for a multi-instance qBittorrent web UI.
It stores instance credentials encrypted at rest, maintains authenticated
sessions with each instance, proxies Web API calls transparently, and can
run bandwidth measurements with all transfers paused.`,
	PersistentPreRunE: initializeApp,
	RunE:              runServe,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeApp loads configuration and sets up logging
func initializeApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger = setupLogger(cfg.Logging)
	return nil
}

// setupLogger configures the zerolog logger
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output format
	if cfg.Format == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	// Console format; color only when writing to a terminal
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.Color || !isatty.IsTerminal(os.Stderr.Fd()),
	}

	return zerolog.New(output).With().Timestamp().Logger()
}

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info().Str("version", version).Msg("Starting qbitweb")

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	v, err := vault.Open(cfg.Vault.KeyPath)
	if err != nil {
		return fmt.Errorf("failed to open credential vault: %w", err)
	}

	httpClient := qbittorrent.NewHTTPClient(cfg.QBittorrent.Timeout, cfg.QBittorrent.AllowSelfSignedCert)
	qbtAuth := qbittorrent.NewAuth(v, httpClient, logger)
	qbtClient := qbittorrent.NewClient(httpClient, logger)
	sessions := qbittorrent.NewSessionCache()
	proxy := qbittorrent.NewProxy(qbtAuth, sessions, httpClient, cfg.QBittorrent.SessionTTL, logger)

	runner := speedtest.NewRunner(cfg.Speedtest.Command, logger)
	loop := speedtest.NewService(st, qbtAuth, qbtClient, runner,
		cfg.Speedtest.PollInterval, cfg.Speedtest.MaxWait, logger)
	scanner := orphans.NewScanner(st, qbtAuth, qbtClient, logger)

	srv := server.New(cfg, st, v, qbtAuth, proxy, loop, scanner, nil, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("qbitweb %s (built %s)\n", version, buildTime)
	},
}
