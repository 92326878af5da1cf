package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/CTAG07/triadgen/pkg/restore"
	"github.com/CTAG07/triadgen/pkg/textmodel"
	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the top-level configuration of the command line.
type Config struct {
	LogLevel  string           `mapstructure:"log_level" json:"log_level"`
	ModelsDir string           `mapstructure:"models_dir" json:"models_dir"`
	TempDir   string           `mapstructure:"temp_dir" json:"temp_dir"`
	Generate  textmodel.Config `mapstructure:"generate" json:"generate"`
	Restore   RestoreConfig    `mapstructure:"restore" json:"restore"`
}

// RestoreConfig holds the sentence restorer settings.
type RestoreConfig struct {
	Sequences   string  `mapstructure:"sequences" json:"sequences"`
	Punctuation string  `mapstructure:"punctuation" json:"punctuation"`
	ProperNouns string  `mapstructure:"proper_nouns" json:"proper_nouns"`
	MeanLength  float64 `mapstructure:"mean_length" json:"mean_length"`
	StdevLength float64 `mapstructure:"stdev_length" json:"stdev_length"`
}

// Files returns the restorer table files.
func (c RestoreConfig) Files() restore.Files {
	return restore.Files{
		Sequences:   c.Sequences,
		Punctuation: c.Punctuation,
		ProperNouns: c.ProperNouns,
	}
}

// LoadOptions controls where Load reads settings from.
type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() Config {
	files := restore.FilesIn("./data")
	return Config{
		LogLevel:  "info",
		ModelsDir: "./models",
		TempDir:   "",
		Generate:  textmodel.DefaultConfig(),
		Restore: RestoreConfig{
			Sequences:   files.Sequences,
			Punctuation: files.Punctuation,
			ProperNouns: files.ProperNouns,
			MeanLength:  restore.DefaultSentenceMean,
			StdevLength: restore.DefaultSentenceStdev,
		},
	}
}

// flagKeys maps every persistent flag to the config key it overrides.
var flagKeys = []struct{ flag, key string }{
	{"log-level", "log_level"},
	{"models-dir", "models_dir"},
	{"temp-dir", "temp_dir"},
	{"mean-words", "generate.mean_words"},
	{"stdev-words", "generate.stdev_words"},
	{"mean-paragraphs", "generate.mean_paragraphs"},
	{"stdev-paragraphs", "generate.stdev_paragraphs"},
	{"punc-required", "generate.punc_required"},
	{"restore-prompt", "generate.restore_prompt"},
	{"max-length", "generate.max_length"},
	{"restore-sequences", "restore.sequences"},
	{"restore-punctuation", "restore.punctuation"},
	{"restore-proper-nouns", "restore.proper_nouns"},
	{"restore-mean-length", "restore.mean_length"},
	{"restore-stdev-length", "restore.stdev_length"},
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("models-dir", defaults.ModelsDir, "Directory holding <name>.db.gz stores")
	fs.String("temp-dir", defaults.TempDir, "Directory for decompressed working copies (default: system temp dir)")
	fs.Float64("mean-words", defaults.Generate.MeanWords, "Mean number of words per paragraph")
	fs.Float64("stdev-words", defaults.Generate.StdevWords, "Standard deviation of words per paragraph")
	fs.Float64("mean-paragraphs", defaults.Generate.MeanParagraphs, "Mean number of paragraphs per block")
	fs.Float64("stdev-paragraphs", defaults.Generate.StdevParagraphs, "Standard deviation of paragraphs per block")
	fs.Bool("punc-required", defaults.Generate.PuncRequired, "Finish every paragraph at terminal punctuation")
	fs.Bool("restore-prompt", defaults.Generate.RestorePrompt, "Put the prompt back in front of the generated text")
	fs.Int("max-length", defaults.Generate.MaxLength, "Maximum words of output, zero or less for no limit")
	fs.String("restore-sequences", defaults.Restore.Sequences, "Sentence POS sequence file")
	fs.String("restore-punctuation", defaults.Restore.Punctuation, "Punctuation probability file")
	fs.String("restore-proper-nouns", defaults.Restore.ProperNouns, "Proper noun dictionary file")
	fs.Float64("restore-mean-length", defaults.Restore.MeanLength, "Mean restored sentence length")
	fs.Float64("restore-stdev-length", defaults.Restore.StdevLength, "Standard deviation of restored sentence length")
}

// Load merges defaults, the config file, TRIADGEN_* environment variables
// and flags, in increasing order of precedence.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for _, fk := range flagKeys {
			if f := fs.Lookup(fk.flag); f != nil {
				if err := v.BindPFlag(fk.key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", fk.flag, err)
				}
			}
		}
	}

	v.SetEnvPrefix("TRIADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("triadgen")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("models_dir", c.ModelsDir)
	v.SetDefault("temp_dir", c.TempDir)
	v.SetDefault("generate.mean_words", c.Generate.MeanWords)
	v.SetDefault("generate.stdev_words", c.Generate.StdevWords)
	v.SetDefault("generate.mean_paragraphs", c.Generate.MeanParagraphs)
	v.SetDefault("generate.stdev_paragraphs", c.Generate.StdevParagraphs)
	v.SetDefault("generate.punc_required", c.Generate.PuncRequired)
	v.SetDefault("generate.restore_prompt", c.Generate.RestorePrompt)
	v.SetDefault("generate.max_length", c.Generate.MaxLength)
	v.SetDefault("restore.sequences", c.Restore.Sequences)
	v.SetDefault("restore.punctuation", c.Restore.Punctuation)
	v.SetDefault("restore.proper_nouns", c.Restore.ProperNouns)
	v.SetDefault("restore.mean_length", c.Restore.MeanLength)
	v.SetDefault("restore.stdev_length", c.Restore.StdevLength)
}

// WriteConfig writes cfg as indented JSON, replacing path atomically.
func WriteConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level. Unknown names are info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// fileExists reports whether path names an existing file.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
