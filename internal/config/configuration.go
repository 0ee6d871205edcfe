package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"thirdcoast.systems/mediagrab/pkg/utils/language"
)

// EnvPrefix namespaces every environment variable, e.g. MEDIAGRAB_RETRIES.
const EnvPrefix = "MEDIAGRAB"

type Config struct {
	// Download options
	Format            string        `mapstructure:"FORMAT" validate:"oneof=mp4 mkv webm mp3 m4a"`
	OutputTemplate    string        `mapstructure:"OUTPUT_TEMPLATE" validate:"required"`
	Subtitles         bool          `mapstructure:"SUBTITLES"`
	SubLangs          []string      `mapstructure:"SUB_LANGS"`
	EmbedMetadata     bool          `mapstructure:"EMBED_METADATA"`
	RestrictFilenames bool          `mapstructure:"RESTRICT_FILENAMES"`
	Separate          bool          `mapstructure:"SEPARATE"`
	Interactive       bool          `mapstructure:"INTERACTIVE"`
	Proxy             string        `mapstructure:"PROXY" validate:"omitempty,url"`
	SpeedLimit        int           `mapstructure:"SPEED_LIMIT" validate:"min=0"`
	Retries           int           `mapstructure:"RETRIES" validate:"min=1"`
	RetryDelay        time.Duration `mapstructure:"RETRY_DELAY" validate:"min=0"`

	// Files
	WorkDir     string `mapstructure:"WORK_DIR"`
	HistoryFile string `mapstructure:"HISTORY_FILE" validate:"required"`
	LogFile     string `mapstructure:"LOG_FILE"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Quiet    bool   `mapstructure:"QUIET"`

	// External tools
	YtdlpPath   string `mapstructure:"YTDLP_PATH" validate:"required"`
	FFmpegPath  string `mapstructure:"FFMPEG_PATH" validate:"required"`
	FFprobePath string `mapstructure:"FFPROBE_PATH" validate:"required"`
}

// SlogLevel maps LogLevel to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("mapstructure"); tag != "" {
			_ = viper.BindEnv(tag)
		}
	}
}

// FlagKey is the config key a command-line flag sets: "speed-limit" -> "SPEED_LIMIT".
func FlagKey(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// bindFlags binds every flag whose key is a Config field. Flags only override
// the environment when they were set on the command line.
func bindFlags(flags *pflag.FlagSet) error {
	keys := map[string]bool{}
	typ := reflect.TypeOf(Config{})
	for i := 0; i < typ.NumField(); i++ {
		keys[typ.Field(i).Tag.Get("mapstructure")] = true
	}

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key := FlagKey(f.Name)
		if !keys[key] || err != nil {
			return
		}
		err = viper.BindPFlag(key, f)
	})
	return err
}

// loadDotEnv reads MEDIAGRAB_ENV_FILE, or ./.env, into the environment.
// Variables already set win. A missing default file is not an error.
func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	slog.Debug("Loaded env file", "path", path)
	return nil
}

// LoadConfig resolves configuration from defaults, a .env file, MEDIAGRAB_*
// environment variables and flags (highest precedence), then validates it.
// flags may be nil.
func LoadConfig(ctx context.Context, flags *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	viper.SetEnvPrefix(EnvPrefix)
	bindEnv(Config{})
	viper.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	// Defaults
	viper.SetDefault("FORMAT", "mp4")
	viper.SetDefault("OUTPUT_TEMPLATE", "%(title)s.%(ext)s")
	viper.SetDefault("RESTRICT_FILENAMES", true)
	viper.SetDefault("RETRIES", 3)
	viper.SetDefault("RETRY_DELAY", 2*time.Second)
	viper.SetDefault("HISTORY_FILE", "download_history.json")
	viper.SetDefault("LOG_FILE", "downloader.log")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("YTDLP_PATH", "yt-dlp")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	slog.Debug("Loaded configuration",
		"format", cfg.Format,
		"retries", cfg.Retries,
		"work_dir", cfg.WorkDir,
		"history_file", cfg.HistoryFile,
		"proxy_set", cfg.Proxy != "")

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	langs, err := language.NormalizeSubLangs(cfg.SubLangs)
	if err != nil {
		return nil, fmt.Errorf("validate config: sub langs: %w", err)
	}
	cfg.SubLangs = langs

	return &cfg, nil
}
