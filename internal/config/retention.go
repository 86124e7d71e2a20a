package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// DuplicateScope controls whether duplicate receipt detection pairs receipts
// within a single trip or across the whole corpus.
const (
	DuplicateScopeTrip   = "trip"
	DuplicateScopeGlobal = "global"
)

// RetentionConfig is the age-based pruning policy for export snapshots and
// uploaded receipt files. The most recent snapshot of a trip is always kept
// regardless of these thresholds.
type RetentionConfig struct {
	SnapshotRetentionDays int    `mapstructure:"snapshotRetentionDays"`
	UploadRetentionDays   int    `mapstructure:"uploadRetentionDays"`
	DuplicateScope        string `mapstructure:"duplicateScope"`
}

func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		SnapshotRetentionDays: 365,
		UploadRetentionDays:   365,
		DuplicateScope:        DuplicateScopeTrip,
	}
}

// RetentionConfigHolder serves the current retention policy and hot-reloads
// it when the backing YAML file changes.
type RetentionConfigHolder struct {
	current atomic.Value // holds RetentionConfig
}

func NewRetentionConfigHolder(appCfg Config) (*RetentionConfigHolder, error) {
	v := viper.New()

	if appCfg.RetentionConfigPath != "" {
		v.SetConfigFile(appCfg.RetentionConfigPath)
	} else {
		v.SetConfigName("retention")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/travelmate")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TRAVELMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRetentionConfig()
	v.SetDefault("retention.snapshotRetentionDays", defaults.SnapshotRetentionDays)
	v.SetDefault("retention.uploadRetentionDays", defaults.UploadRetentionDays)
	v.SetDefault("retention.duplicateScope", defaults.DuplicateScope)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && appCfg.RetentionConfigPath != "" {
			return nil, err
		}
	}

	var cfg RetentionConfig
	if err := v.UnmarshalKey("retention", &cfg); err != nil {
		return nil, err
	}
	if err := validateRetentionConfig(cfg); err != nil {
		return nil, err
	}

	holder := &RetentionConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RetentionConfig
		if err := v.UnmarshalKey("retention", &updated); err != nil {
			log.Printf("[retention-config] reload failed: %v", err)
			return
		}
		if err := validateRetentionConfig(updated); err != nil {
			log.Printf("[retention-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[retention-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// Current returns the most recently loaded policy.
func (h *RetentionConfigHolder) Current() RetentionConfig {
	return h.current.Load().(RetentionConfig)
}

// NewStaticRetentionConfigHolder returns a holder with a fixed policy,
// used by tests.
func NewStaticRetentionConfigHolder(cfg RetentionConfig) *RetentionConfigHolder {
	holder := &RetentionConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateRetentionConfig(cfg RetentionConfig) error {
	if cfg.SnapshotRetentionDays <= 0 || cfg.UploadRetentionDays <= 0 {
		return errors.New("retention thresholds must be positive day counts")
	}
	switch cfg.DuplicateScope {
	case DuplicateScopeTrip, DuplicateScopeGlobal:
	default:
		return errors.New("duplicateScope must be \"trip\" or \"global\"")
	}
	return nil
}
