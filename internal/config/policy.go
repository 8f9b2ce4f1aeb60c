package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Policy holds the marketplace knobs that can change without a restart.
type Policy struct {
	RateLimit    RateLimitPolicy    `mapstructure:"rateLimit"`
	Chat         ChatPolicy         `mapstructure:"chat"`
	Sweep        SweepPolicy        `mapstructure:"sweep"`
	Notification NotificationPolicy `mapstructure:"notification"`
	Session      SessionPolicy      `mapstructure:"session"`
}

type RateLimitPolicy struct {
	Window         time.Duration `mapstructure:"window"`
	CampaignCreate int           `mapstructure:"campaignCreate"`
	OfferCreate    int           `mapstructure:"offerCreate"`
	// SweepEvery is the number of Allow calls between full sweeps.
	SweepEvery int `mapstructure:"sweepEvery"`
}

type ChatPolicy struct {
	ConfirmationWindow time.Duration `mapstructure:"confirmationWindow"`
}

type SweepPolicy struct {
	BatchSize int `mapstructure:"batchSize"`
}

type NotificationPolicy struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// SessionPolicy bounds how long an abandoned conversation state is kept.
type SessionPolicy struct {
	TTL time.Duration `mapstructure:"ttl"`
}

func DefaultPolicy() Policy {
	return Policy{
		RateLimit: RateLimitPolicy{
			Window:         time.Hour,
			CampaignCreate: 10,
			OfferCreate:    30,
			SweepEvery:     1000,
		},
		Chat:         ChatPolicy{ConfirmationWindow: 24 * time.Hour},
		Sweep:        SweepPolicy{BatchSize: 200},
		Notification: NotificationPolicy{Debounce: 30 * time.Second},
		Session:      SessionPolicy{TTL: 24 * time.Hour},
	}
}

type PolicyHolder struct {
	current atomic.Value // holds Policy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(p Policy) *PolicyHolder {
	h := &PolicyHolder{}
	h.current.Store(p)
	return h
}

// NewPolicyHolder reads policy.yml (or cfg.PolicyFilePath), applies MATCHHUB_
// env overrides and swaps the active policy whenever the file changes.
func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.policy")

	v := viper.New()
	if cfg.PolicyFilePath != "" {
		v.SetConfigFile(cfg.PolicyFilePath)
	} else {
		v.SetConfigName("policy")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/matchhub")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MATCHHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPolicyDefaults(v, DefaultPolicy())

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
	}

	policy, err := decodePolicy(v)
	if err != nil {
		return nil, err
	}

	holder := &PolicyHolder{}
	holder.current.Store(policy)

	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePolicy(v)
			if err != nil {
				log.Warn("policy reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

func (h *PolicyHolder) Get() Policy {
	return h.current.Load().(Policy)
}

func setPolicyDefaults(v *viper.Viper, p Policy) {
	v.SetDefault("policy.rateLimit.window", p.RateLimit.Window)
	v.SetDefault("policy.rateLimit.campaignCreate", p.RateLimit.CampaignCreate)
	v.SetDefault("policy.rateLimit.offerCreate", p.RateLimit.OfferCreate)
	v.SetDefault("policy.rateLimit.sweepEvery", p.RateLimit.SweepEvery)
	v.SetDefault("policy.chat.confirmationWindow", p.Chat.ConfirmationWindow)
	v.SetDefault("policy.sweep.batchSize", p.Sweep.BatchSize)
	v.SetDefault("policy.notification.debounce", p.Notification.Debounce)
	v.SetDefault("policy.session.ttl", p.Session.TTL)
}

// decodePolicy unmarshals the merged settings so keys missing from the file
// fall back to their defaults.
func decodePolicy(v *viper.Viper) (Policy, error) {
	var doc struct {
		Policy Policy `mapstructure:"policy"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return Policy{}, err
	}
	if err := validatePolicy(doc.Policy); err != nil {
		return Policy{}, err
	}
	return doc.Policy, nil
}

func validatePolicy(p Policy) error {
	if p.RateLimit.Window <= 0 {
		return errors.New("policy.rateLimit.window must be positive")
	}
	if p.RateLimit.CampaignCreate <= 0 || p.RateLimit.OfferCreate <= 0 {
		return errors.New("policy.rateLimit limits must be positive")
	}
	if p.Chat.ConfirmationWindow <= 0 {
		return errors.New("policy.chat.confirmationWindow must be positive")
	}
	if p.Session.TTL <= 0 {
		return errors.New("policy.session.ttl must be positive")
	}
	if p.Sweep.BatchSize <= 0 {
		return errors.New("policy.sweep.batchSize must be positive")
	}
	return nil
}
