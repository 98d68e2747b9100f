package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required"`
		LogLevel         int    `env:"LOG_LEVEL,default=4"`
		DotPath          string `env:"DOT_PATH,default=~/.warden"`
		RulesPath        string `env:"RULES_PATH"`
		MetricsAddr      string `env:"METRICS_ADDR,default=:2112"`
		Detection        Detection
		Trust            Trust
		Fingerprint      Fingerprint
	}

	Detection struct {
		FailOpen     bool          `env:"DETECTION_FAIL_OPEN,default=true"`
		StoreTimeout time.Duration `env:"DETECTION_STORE_TIMEOUT,default=2s"`

		RateWindow         time.Duration `env:"DETECTION_RATE_WINDOW,default=10s"`
		RateCount          int           `env:"DETECTION_RATE_COUNT,default=5"`
		DuplicateWindow    time.Duration `env:"DETECTION_DUPLICATE_WINDOW,default=60s"`
		DuplicateCount     int           `env:"DETECTION_DUPLICATE_COUNT,default=3"`
		CrossChannelWindow time.Duration `env:"DETECTION_CROSS_CHANNEL_WINDOW,default=300s"`
		CrossChannelCount  int           `env:"DETECTION_CROSS_CHANNEL_COUNT,default=3"`

		MaxMentions     int     `env:"DETECTION_MAX_MENTIONS,default=5"`
		MaxLinks        int     `env:"DETECTION_MAX_LINKS,default=1"`
		MaxCapsRatio    float64 `env:"DETECTION_MAX_CAPS_RATIO,default=0.7"`
		MinCapsLength   int     `env:"DETECTION_MIN_CAPS_LENGTH,default=20"`
		RepeatedCharRun int     `env:"DETECTION_REPEATED_CHAR_RUN,default=10"`

		HistoryRetention  time.Duration `env:"DETECTION_HISTORY_RETENTION,default=720h"`
		HistoryMaxPerUser int           `env:"DETECTION_HISTORY_MAX_PER_USER,default=512"`
	}

	Trust struct {
		RecalculateAfter time.Duration `env:"TRUST_RECALCULATE_AFTER,default=24h"`
		WarningDecayDays int           `env:"TRUST_WARNING_DECAY_DAYS,default=30"`
		MinReactionRatio float64       `env:"TRUST_MIN_REACTION_RATIO,default=0.1"`
	}

	Fingerprint struct {
		MaxImageBytes    int64         `env:"FINGERPRINT_MAX_IMAGE_BYTES,default=8388608"`
		MatchDistance    int           `env:"FINGERPRINT_MATCH_DISTANCE,default=10"`
		ReportThreshold  int           `env:"FINGERPRINT_REPORT_THRESHOLD,default=5"`
		ReportCooldown   time.Duration `env:"FINGERPRINT_REPORT_COOLDOWN,default=24h"`
		DownloadTimeout  time.Duration `env:"FINGERPRINT_DOWNLOAD_TIMEOUT,default=10s"`
		ScanBatchSize    int           `env:"FINGERPRINT_SCAN_BATCH_SIZE,default=1000"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("WARDEN_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
