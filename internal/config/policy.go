package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ResumePolicy decides what happens to the next refill date when a paused
// subscription is resumed.
type ResumePolicy string

const (
	// ResumePolicyKeepSchedule keeps the originally scheduled date, which may
	// already be due and triggers an immediate catch-up refill.
	ResumePolicyKeepSchedule ResumePolicy = "keep_schedule"
	// ResumePolicyResetSchedule rolls the next refill date forward to one
	// month after the resume.
	ResumePolicyResetSchedule ResumePolicy = "reset_schedule"
)

// RefillPolicy is operator-tunable behavior of the subscription engine.
// It lives in a config file rather than env so it can change without restart.
type RefillPolicy struct {
	ResumePolicy    ResumePolicy `mapstructure:"resumePolicy"`
	MaxErrorDetails int          `mapstructure:"maxErrorDetails"`
}

func DefaultRefillPolicy() RefillPolicy {
	return RefillPolicy{
		ResumePolicy:    ResumePolicyKeepSchedule,
		MaxErrorDetails: 25,
	}
}

// RefillPolicyHolder keeps the current policy and hot-reloads it on file change.
type RefillPolicyHolder struct {
	current atomic.Value // holds RefillPolicy
}

func NewRefillPolicyHolder() (*RefillPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("policy")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/credcore/config")
	v.AddConfigPath("/etc/credcore")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CREDCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRefillPolicy()
	v.SetDefault("refill.resumePolicy", string(defaults.ResumePolicy))
	v.SetDefault("refill.maxErrorDetails", defaults.MaxErrorDetails)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg RefillPolicy
	if err := v.UnmarshalKey("refill", &cfg); err != nil {
		return nil, err
	}
	if err := validateRefillPolicy(cfg); err != nil {
		return nil, err
	}

	holder := &RefillPolicyHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RefillPolicy
		if err := v.UnmarshalKey("refill", &updated); err != nil {
			zap.L().Warn("refill policy reload failed", zap.Error(err))
			return
		}
		if err := validateRefillPolicy(updated); err != nil {
			zap.L().Warn("invalid refill policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		zap.L().Info("refill policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticRefillPolicyHolder returns a holder pinned to the given policy.
// Used by tests and by callers that do not want file watching.
func NewStaticRefillPolicyHolder(policy RefillPolicy) *RefillPolicyHolder {
	holder := &RefillPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *RefillPolicyHolder) Get() RefillPolicy {
	return h.current.Load().(RefillPolicy)
}

func validateRefillPolicy(cfg RefillPolicy) error {
	switch cfg.ResumePolicy {
	case ResumePolicyKeepSchedule, ResumePolicyResetSchedule:
	default:
		return errors.New("refill.resumePolicy must be keep_schedule or reset_schedule")
	}
	if cfg.MaxErrorDetails <= 0 {
		return errors.New("refill.maxErrorDetails must be positive")
	}
	return nil
}
