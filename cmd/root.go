package cmd

import (
	"fmt"
	"io"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/sdm/internal/output"
	"github.com/tanq16/sdm/internal/utils"
)

var (
	connections     int
	workers         int
	timeout         time.Duration
	kaTimeout       time.Duration
	userAgent       string
	proxyURL        string
	proxyUsername   string
	proxyPassword   string
	headers         []string
	debug           bool
	logFile         string
	configPath      string
	speedLimit      string
	globalLimit     string
	retries         int
	retryInterval   time.Duration
	closeOnComplete bool
)

var (
	settings         utils.Settings
	globalHTTPConfig utils.HTTPClientConfig
	logCloser        io.Closer
)

var SDMVersion = "dev"

var rootCmd = &cobra.Command{
	Use:               "sdm",
	Short:             "sdm is a parallel, resumable HTTP download manager",
	Version:           SDMVersion,
	SilenceUsage:      true,
	PersistentPreRunE: bootstrap,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.IntVarP(&connections, "connections", "c", 8, "Number of connections per download (above 5 enables high-thread-mode)")
	flags.IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	flags.DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connect and response-header timeout (eg. 5s, 10m)")
	flags.DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	flags.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser agent)")
	flags.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	flags.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	flags.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	flags.StringVar(&speedLimit, "limit", "", "Speed limit per download (eg. 500KB, 2MB; 0 for unlimited)")
	flags.StringVar(&globalLimit, "global-limit", "", "Combined speed limit across all downloads")
	flags.IntVar(&retries, "retries", 3, "Retries before a download is marked failed")
	flags.DurationVar(&retryInterval, "retry-interval", 30*time.Second, "Wait between retries")
	flags.BoolVar(&closeOnComplete, "close-on-complete", false, "Exit once every download is finished")
	flags.StringVar(&configPath, "config", "", "Settings file (default $XDG_CONFIG_HOME/sdm/settings.yaml)")
	flags.StringVar(&logFile, "log-file", utils.LogFile, "Append lifecycle logs to this file")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newSettingsCmd())
	rootCmd.AddCommand(newLogsCmd())
}

// bootstrap loads settings, applies flag overrides and starts logging.
func bootstrap(cmd *cobra.Command, args []string) error {
	var err error
	if configPath == "" {
		if configPath, err = utils.SettingsPath(); err != nil {
			return fmt.Errorf("error locating settings: %w", err)
		}
	}
	if settings, err = utils.LoadSettings(configPath); err != nil {
		return err
	}
	if logCloser, err = utils.InitLogger(debug, logFile); err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	if err := applyFlagOverrides(cmd); err != nil {
		return err
	}

	parsedProxy, err := u.Parse(proxyURL)
	if err == nil && parsedProxy.User != nil && proxyUsername == "" {
		proxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			proxyPassword = password
		}
		parsedProxy.User = nil
		proxyURL = parsedProxy.String()
	}
	globalHTTPConfig = utils.HTTPClientConfig{
		Timeout:        timeout,
		KATimeout:      kaTimeout,
		ProxyURL:       proxyURL,
		ProxyUsername:  proxyUsername,
		ProxyPassword:  proxyPassword,
		UserAgent:      userAgent,
		Headers:        utils.ParseHeaderArgs(headers),
		HighThreadMode: settings.Connections > 5,
	}
	compLog := utils.GetLogger("cmd")
	compLog.Debug().Str("config", configPath).Int("connections", settings.Connections).
		Int("workers", settings.Workers).Int64("limit", int64(settings.SpeedLimit)).Msg("settings loaded")
	return nil
}

func applyFlagOverrides(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("connections") {
		settings.Connections = connections
	}
	if flags.Changed("workers") {
		settings.Workers = workers
	}
	if flags.Changed("retries") {
		settings.MaxRetries = retries
	}
	if flags.Changed("retry-interval") {
		settings.RetryInterval = retryInterval
	}
	if flags.Changed("close-on-complete") {
		settings.CloseOnComplete = closeOnComplete
	}
	if flags.Changed("limit") {
		n, err := utils.ParseBytes(speedLimit)
		if err != nil {
			return fmt.Errorf("invalid --limit: %w", err)
		}
		settings.SpeedLimit = utils.ByteSize(n)
	}
	if flags.Changed("global-limit") {
		n, err := utils.ParseBytes(globalLimit)
		if err != nil {
			return fmt.Errorf("invalid --global-limit: %w", err)
		}
		settings.GlobalLimit = utils.ByteSize(n)
	}
	settings.Workers = max(settings.Workers, 1)
	settings.Connections = max(settings.Connections, 1)
	if settings.MaxConnections <= 0 {
		settings.MaxConnections = utils.DefaultMaxConnections
	}
	// connections shared by parallel downloads stay under the global cap
	if settings.Workers*settings.Connections > settings.MaxConnections {
		settings.Connections = max(settings.MaxConnections/settings.Workers, 1)
	}
	return nil
}
