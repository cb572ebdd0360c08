package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configBaseName   = "harvest"
	configFolderPath = "."

	envPrefix = "HARVEST"

	outputFlagName   = "output"
	carveDirFlagName = "carve-dir"
	logFileFlagName  = "log-file"
	verboseFlagName  = "verbose"

	outputKey   = "output"
	carveDirKey = "carve_dir"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogLevel      = "info"
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(outputKey, "")
	viper.SetDefault(carveDirKey, "")

	// An empty log.filename logs to stderr.
	viper.SetDefault(logFilenameKey, "")
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, false)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("harvest: ignoring unreadable config file", "error", err)
		}
	}
}

// parseSlogLevel accepts slog level names with offsets ("debug", "INFO+2"),
// "warning", and bare integers. Empty input selects Info.
func parseSlogLevel(value string) (slog.Level, error) {
	v := strings.TrimSpace(value)
	switch {
	case v == "":
		return slog.LevelInfo, nil
	case strings.EqualFold(v, "warning"):
		return slog.LevelWarn, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return slog.Level(n), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%s %q: %w", logLevelKey, v, err)
	}
	return level, nil
}

// configureLogger installs the default slog logger. It writes to a rotating
// file when logPath is set and to stderr otherwise; verbose forces Debug.
func configureLogger(logPath string, verbose bool) *slog.Logger {
	logLevel, levelErr := parseSlogLevel(viper.GetString(logLevelKey))
	if verbose {
		logLevel = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	if strings.TrimSpace(logPath) != "" {
		w = &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    viper.GetInt(logMaxSizeKey),
			MaxBackups: viper.GetInt(logMaxBackupsKey),
			MaxAge:     viper.GetInt(logMaxAgeKey),
			Compress:   viper.GetBool(logCompressKey),
		}
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	if levelErr != nil {
		logger.Warn("harvest: using info level", "error", levelErr)
	}
	return logger
}
