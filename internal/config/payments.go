package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PaymentsConfig holds the operational knobs of the payment lifecycle that
// operators tune without a redeploy.
type PaymentsConfig struct {
	// IntentExpiryMinutes is the window a pending intent stays settleable.
	IntentExpiryMinutes int `mapstructure:"intentExpiryMinutes"`

	// OrderRatePerMinute / OrderBurst bound create-order calls per student+IP.
	OrderRatePerMinute float64 `mapstructure:"orderRatePerMinute"`
	OrderBurst         int     `mapstructure:"orderBurst"`

	WebhookRatePerMinute float64 `mapstructure:"webhookRatePerMinute"`
	WebhookBurst         int     `mapstructure:"webhookBurst"`

	InvoiceFooter string `mapstructure:"invoiceFooter"`
}

func DefaultPaymentsConfig() PaymentsConfig {
	return PaymentsConfig{
		IntentExpiryMinutes:  20,
		OrderRatePerMinute:   30,
		OrderBurst:           10,
		WebhookRatePerMinute: 600,
		WebhookBurst:         100,
		InvoiceFooter:        "Generated by tutorpay. Questions? billing@tutorpay.test",
	}
}

// PaymentsConfigHolder keeps the current PaymentsConfig and hot-reloads it
// when payments.yml changes on disk.
type PaymentsConfigHolder struct {
	current atomic.Value // holds PaymentsConfig
}

func NewPaymentsConfigHolder() (*PaymentsConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tutorpay/config")
	v.AddConfigPath("/etc/tutorpay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TUTORPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPaymentsConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("payments.intentExpiryMinutes", defaults.IntentExpiryMinutes)
		v.SetDefault("payments.orderRatePerMinute", defaults.OrderRatePerMinute)
		v.SetDefault("payments.orderBurst", defaults.OrderBurst)
		v.SetDefault("payments.webhookRatePerMinute", defaults.WebhookRatePerMinute)
		v.SetDefault("payments.webhookBurst", defaults.WebhookBurst)
		v.SetDefault("payments.invoiceFooter", defaults.InvoiceFooter)
	}

	var cfg PaymentsConfig
	if err := v.UnmarshalKey("payments", &cfg); err != nil {
		return nil, err
	}
	if err := validatePaymentsConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PaymentsConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PaymentsConfig
		if err := v.UnmarshalKey("payments", &updated); err != nil {
			log.Printf("[payments-config] reload failed: %v", err)
			return
		}
		if err := validatePaymentsConfig(updated); err != nil {
			log.Printf("[payments-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payments-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PaymentsConfigHolder) Get() PaymentsConfig {
	return h.current.Load().(PaymentsConfig)
}

// NewStaticPaymentsConfigHolder wraps a fixed config with no file watching.
func NewStaticPaymentsConfigHolder(cfg PaymentsConfig) *PaymentsConfigHolder {
	holder := &PaymentsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validatePaymentsConfig(cfg PaymentsConfig) error {
	if cfg.IntentExpiryMinutes <= 0 {
		return errors.New("payments.intentExpiryMinutes must be positive")
	}
	if cfg.OrderRatePerMinute <= 0 || cfg.OrderBurst <= 0 {
		return errors.New("payments.orderRate settings must be positive")
	}
	if cfg.WebhookRatePerMinute <= 0 || cfg.WebhookBurst <= 0 {
		return errors.New("payments.webhookRate settings must be positive")
	}
	return nil
}
