package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/tanq16/refetch/internal/config"
	"github.com/tanq16/refetch/internal/engine"
	"github.com/tanq16/refetch/internal/fileguard"
	"github.com/tanq16/refetch/internal/filename"
	"github.com/tanq16/refetch/internal/transfer"
	"github.com/tanq16/refetch/internal/utils"
)

var (
	debug         bool
	configPath    string
	envFile       string
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	token         string
	headers       []string
	largeBuffers  bool

	runtimeConfig config.Config
)

var RefetchVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "refetch",
	Short:   "Refetch downloads a file and can keep deleting and re-downloading it on a timer",
	Version: RefetchVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		runtimeConfig = cfg
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging on stderr (default logs go to "+utils.LogFile+")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file with REFETCH_* variables")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Time to wait for response headers (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent, 'randomize' picks a browser one")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token sent with every request")
	rootCmd.PersistentFlags().BoolVar(&largeBuffers, "large-buffers", false, "Use 1 MiB socket buffers (helps on fast, high-latency links)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")

	rootCmd.AddCommand(newHTTPCmd())
	rootCmd.AddCommand(newMenuCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newUnlockCmd())
}

// setupLogging keeps diagnostics off the terminal unless --debug is set, so
// they do not tear the progress line.
func setupLogging() {
	if debug {
		utils.InitLogger(true, os.Stderr)
		return
	}
	f, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		utils.InitLogger(false, os.Stderr)
		log.Warn().Str("op", "cmd/root").Err(err).Msg("Cannot open log file, logging to stderr")
		return
	}
	utils.InitLogger(false, f)
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		fileCfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}
	if err := config.LoadDotEnv(envFile); err != nil {
		return cfg, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	var override config.Config
	if flags.Changed("timeout") {
		override.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		override.HTTP.KeepAlive = kaTimeout
	}
	if flags.Changed("user-agent") {
		override.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		override.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		override.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		override.HTTP.ProxyPassword = proxyPassword
	}
	if flags.Changed("token") {
		override.HTTP.Token = token
	}
	if flags.Changed("large-buffers") {
		override.HTTP.LargeBuffers = largeBuffers
	}
	if len(headers) > 0 {
		override.HTTP.Headers = utils.ParseHeaderArgs(headers)
	}
	cfg = cfg.Merge(override)

	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.HTTP.Proxy)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.Proxy = parsedProxy.String()
	}
	log.Debug().Str("op", "cmd/root").Str("targetDir", cfg.TargetDir).Int("delay", cfg.DeleteDelay).Str("onConflict", cfg.OnConflict).Msg("Configuration loaded")
	return cfg, nil
}

func buildEngine(cfg config.Config, observer engine.Observer, resolver engine.ConflictResolver) *engine.Engine {
	guard := fileguard.New(afero.NewOsFs())
	names := filename.NewSeededResolver(uint64(time.Now().UnixNano()), uint64(os.Getpid()))
	exec := transfer.NewExecutor(utils.NewHTTPClient(cfg.Client()), guard, names, transfer.WithChunkSize(cfg.ChunkSize))
	return engine.New(exec, guard, observer,
		engine.WithRetryBackoff(cfg.RetryBackoff),
		engine.WithConflictResolver(resolver),
	)
}

func policyFor(onConflict string) engine.ConflictResolver {
	if onConflict == config.ConflictAbort {
		return engine.Policy(transfer.Abort)
	}
	return engine.Policy(transfer.Overwrite)
}
