package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// TaxRatesConfig is the jurisdiction table consumed by the tax engine.
// Rates are percentages encoded as decimal strings ("21", "25.5").
type TaxRatesConfig struct {
	Bloc         string            `mapstructure:"bloc"`
	Members      map[string]string `mapstructure:"members"`
	Standard     map[string]string `mapstructure:"standard"`
	SpecialPairs []SpecialPair     `mapstructure:"specialPairs"`
}

// SpecialPair overrides the generic rules for a seller/buyer combination.
type SpecialPair struct {
	Seller        string `mapstructure:"seller"`
	Buyer         string `mapstructure:"buyer"`
	Rate          string `mapstructure:"rate"`
	Explanation   string `mapstructure:"explanation"`
	Bidirectional bool   `mapstructure:"bidirectional"`
}

func DefaultTaxRatesConfig() TaxRatesConfig {
	return TaxRatesConfig{
		Bloc: "EU",
		Members: map[string]string{
			"AT": "20", "BE": "21", "BG": "20", "HR": "25", "CY": "19",
			"CZ": "21", "DK": "25", "EE": "24", "FI": "25.5", "FR": "20",
			"DE": "19", "GR": "24", "HU": "27", "IE": "23", "IT": "22",
			"LV": "21", "LT": "21", "LU": "17", "MT": "18", "NL": "21",
			"PL": "23", "PT": "23", "RO": "21", "SK": "23", "SI": "22",
			"ES": "21", "SE": "25",
		},
		Standard: map[string]string{
			"GB": "20", "NO": "25", "CH": "8.1", "US": "0", "CA": "5",
			"AU": "10", "NZ": "15", "JP": "10", "SG": "9", "IN": "18",
		},
		SpecialPairs: []SpecialPair{
			{Seller: "US", Buyer: "CA", Rate: "5", Explanation: "North America — flat 5% cross-border rate", Bidirectional: true},
			{Seller: "US", Buyer: "US", Rate: "0", Explanation: "US — no federal sales tax; state and local rates apply"},
		},
	}
}

type TaxRatesHolder struct {
	current atomic.Value // holds TaxRatesConfig
}

// NewStaticTaxRatesHolder wraps a fixed table without file watching.
func NewStaticTaxRatesHolder(cfg TaxRatesConfig) (*TaxRatesHolder, error) {
	cfg = normalizeTaxRates(cfg)
	if err := validateTaxRates(cfg); err != nil {
		return nil, err
	}
	holder := &TaxRatesHolder{}
	holder.current.Store(cfg)
	return holder, nil
}

func NewTaxRatesHolder(log *zap.Logger) (*TaxRatesHolder, error) {
	log = log.Named("config.tax_rates")
	v := viper.New()

	v.SetConfigName("tax_rates")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/mijn-api/config")
	v.AddConfigPath("/etc/mijn-api")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MIJN_API")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fromFile = false
	}

	cfg := DefaultTaxRatesConfig()
	if fromFile {
		loaded, err := unmarshalTaxRates(v)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	holder, err := NewStaticTaxRatesHolder(cfg)
	if err != nil {
		return nil, err
	}
	if !fromFile {
		log.Info("tax rate file not found, using built-in table")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalTaxRates(v)
		if err != nil {
			log.Error("tax rate reload failed", zap.Error(err))
			return
		}
		updated = normalizeTaxRates(updated)
		if err := validateTaxRates(updated); err != nil {
			log.Error("invalid tax rate table ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("tax rate table reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *TaxRatesHolder) Get() TaxRatesConfig {
	return h.current.Load().(TaxRatesConfig)
}

func unmarshalTaxRates(v *viper.Viper) (TaxRatesConfig, error) {
	var cfg TaxRatesConfig
	if err := v.UnmarshalKey("tax", &cfg); err != nil {
		return TaxRatesConfig{}, err
	}
	return cfg, nil
}

// viper lower-cases map keys, so country codes are re-normalized here.
func normalizeTaxRates(cfg TaxRatesConfig) TaxRatesConfig {
	out := TaxRatesConfig{
		Bloc:     strings.ToUpper(strings.TrimSpace(cfg.Bloc)),
		Members:  make(map[string]string, len(cfg.Members)),
		Standard: make(map[string]string, len(cfg.Standard)),
	}
	for code, rate := range cfg.Members {
		out.Members[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(rate)
	}
	for code, rate := range cfg.Standard {
		out.Standard[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(rate)
	}
	for _, pair := range cfg.SpecialPairs {
		pair.Seller = strings.ToUpper(strings.TrimSpace(pair.Seller))
		pair.Buyer = strings.ToUpper(strings.TrimSpace(pair.Buyer))
		pair.Rate = strings.TrimSpace(pair.Rate)
		out.SpecialPairs = append(out.SpecialPairs, pair)
	}
	return out
}

func validateTaxRates(cfg TaxRatesConfig) error {
	if len(cfg.Members) == 0 {
		return errors.New("tax.members cannot be empty")
	}
	check := func(section, code, raw string) error {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("tax.%s.%s: invalid rate %q", section, code, raw)
		}
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(100)) {
			return fmt.Errorf("tax.%s.%s: rate out of range", section, code)
		}
		return nil
	}
	for code, raw := range cfg.Members {
		if err := check("members", code, raw); err != nil {
			return err
		}
	}
	for code, raw := range cfg.Standard {
		if err := check("standard", code, raw); err != nil {
			return err
		}
	}
	for _, pair := range cfg.SpecialPairs {
		if pair.Seller == "" || pair.Buyer == "" {
			return errors.New("tax.specialPairs: seller and buyer are required")
		}
		if err := check("specialPairs", pair.Seller+"-"+pair.Buyer, pair.Rate); err != nil {
			return err
		}
	}
	return nil
}
