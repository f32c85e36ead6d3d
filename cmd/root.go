package cmd

import (
	"context"
	"fmt"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/ansagrado"
	"github.com/Sitedirector05/Vesta-Technologies-Ansagrado-BASIC-Bot/datastore"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
)

// EnvvarSetEnvPrefix overrides the ANSAGRADO_ prefix used for
// environment variables.
const EnvvarSetEnvPrefix = "ANSAGRADO_ENV_PREFIX"

var (
	cfg        = ansagrado.DefaultConfig()
	configFile string
)

// legacyEnv maps config keys to the unprefixed variable names the bot
// has always read from its .env file. Prefixed variables win.
var legacyEnv = map[string]string{
	"discord.token": "DISCORD_TOKEN",
	"database.uri":  "MONGODB_URI",
	"database.name": "DB_NAME",
	"openai.token":  "OPENROUTER_API_KEY",
}

// logLevelKeys are converted to *slog.LevelVar before decoding
var logLevelKeys = []string{
	"log_level",
	"database.log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"openai.log_level",
	"api.log_level",
}

var rootCmd = &cobra.Command{
	Use:   "ansagrado [flags]",
	Short: "Ansagrado Discord bot",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := decodeConfig(cfg); err != nil {
			log.Fatalln(err)
		}
	},
}

func decodeConfig(target *ansagrado.Config) error {
	// mapstructure decodes lists over the existing elements without
	// truncating. The defaults for these come from viper.
	target.API.CORS.AllowOrigins = nil
	target.API.CORS.AllowMethods = nil
	target.API.CORS.AllowHeaders = nil
	target.API.CORS.ExposeHeaders = nil
	return viper.Unmarshal(
		target,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes level names (DEBUG, INFO, WARN, ERROR)
// into *slog.LevelVar fields.
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}
		if t.Elem() != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, err
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setDefaults() {
	// Database
	viper.SetDefault("database.type", "")
	viper.SetDefault("database.uri", "")
	viper.SetDefault("database.name", datastore.DefaultDatabaseName)
	viper.SetDefault("database.local_dir", datastore.DefaultLocalDir)
	viper.SetDefault("database.connect_timeout", datastore.DefaultConnectTimeout)
	viper.SetDefault("database.operation_timeout", datastore.DefaultOperationTimeout)
	viper.SetDefault("database.slow_threshold", datastore.DefaultSlowThreshold)
	viper.SetDefault("database.log_level", datastore.DefaultLogLevel.String())

	viper.SetDefault("log_level", ansagrado.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", ansagrado.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", ansagrado.DefaultShutdownTimeout)
	viper.SetDefault("timezone", ansagrado.DefaultTimezone)
	viper.SetDefault("trivia_duration", ansagrado.DefaultTriviaDuration)

	// Discord
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.log_level", ansagrado.DefaultDiscordLogLevel.String())
	viper.SetDefault(
		"discord.discordgo_log_level",
		ansagrado.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault("discord.status", ansagrado.DefaultDiscordStatus)
	viper.SetDefault("discord.gateway_intents", int(ansagrado.DefaultDiscordGatewayIntent))

	// OpenAI-compatible endpoint (OpenRouter by default)
	viper.SetDefault("openai.token", "")
	viper.SetDefault("openai.base_url", ansagrado.DefaultOpenAIBaseURL)
	viper.SetDefault("openai.model", ansagrado.DefaultOpenAIModel)
	viper.SetDefault(
		"openai.max_requests_per_second",
		ansagrado.DefaultOpenAIMaxRequestsPerSecond,
	)
	viper.SetDefault("openai.chat_max_tokens", ansagrado.DefaultOpenAIChatMaxTokens)
	viper.SetDefault("openai.chat_temperature", ansagrado.DefaultOpenAIChatTemperature)
	viper.SetDefault("openai.log_level", ansagrado.DefaultOpenAILogLevel.String())

	// Admin API
	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", ansagrado.DefaultAPIListen)
	viper.SetDefault("api.listen_network", "tcp")
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.ssl.cert", "")
	viper.SetDefault("api.ssl.key", "")
	viper.SetDefault("api.ssl.tls_min_version", ansagrado.DefaultAPITLSMinVersion)
	viper.SetDefault("api.log_level", ansagrado.DefaultAPILogLevel.String())
	viper.SetDefault("api.read_timeout", ansagrado.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", ansagrado.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", ansagrado.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", ansagrado.DefaultIdleTimeout)
	viper.SetDefault("api.development", false)

	// API: CORS
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.allow_methods", ansagrado.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.allow_headers", ansagrado.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.expose_headers", ansagrado.DefaultCORSExposeHeaders)
	viper.SetDefault("api.cors.allow_credentials", ansagrado.DefaultAPICORSAllowCredentials)
	viper.SetDefault("api.cors.max_age", ansagrado.DefaultCORSMaxAge)
}

func envPrefix() string {
	if prefix := os.Getenv(EnvvarSetEnvPrefix); prefix != "" {
		return prefix
	}
	return ansagrado.DefaultEnvPrefix
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("unable to load env file %s: %v", configFile, err)
		}
	}

	setDefaults()

	prefix := envPrefix()
	viper.SetEnvPrefix(prefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := strings.ToUpper(
			prefix + "_" + strings.ReplaceAll(key, ".", "_"),
		)
		if err := viper.BindEnv(key, prefixed, legacy); err != nil {
			log.Fatalf("error binding %s: %v", key, err)
		}
	}

	// Space-separated lists from the environment
	for _, key := range []string{
		"api.cors.allow_origins",
		"api.cors.allow_methods",
		"api.cors.allow_headers",
		"api.cors.expose_headers",
	} {
		viper.Set(key, viper.GetStringSlice(key))
	}

	for _, key := range logLevelKeys {
		lvl, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, lvl)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load (defaults to .env in the working directory)",
	)
}
