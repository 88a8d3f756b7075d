package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PayoutConfig is the settlement and commission configuration in effect for a run.
type PayoutConfig struct {
	WaitingPeriodDays      int             `json:"waiting_period_days"`
	InstructorSharePercent decimal.Decimal `json:"instructor_share_percent"`
	BatchSize              int             `json:"batch_size"`
	SchedulingEnabled      bool            `json:"scheduling_enabled"`
	CommissionPercent      decimal.Decimal `json:"commission_percent"`
	CommissionEnabled      bool            `json:"commission_enabled"`

	OversampleFactor    int           `json:"oversample_factor"`
	MaxScanPages        int           `json:"max_scan_pages"`
	SettlementInterval  time.Duration `json:"settlement_interval"`
	ReportInterval      time.Duration `json:"report_interval"`
	MaintenanceInterval time.Duration `json:"maintenance_interval"`
	JobRunRetention     time.Duration `json:"job_run_retention"`
	DispatchWorkers     int           `json:"dispatch_workers"`
	DispatchQueueSize   int           `json:"dispatch_queue_size"`
}

// WaitingPeriod returns the waiting period as elapsed time.
func (c PayoutConfig) WaitingPeriod() time.Duration {
	return time.Duration(c.WaitingPeriodDays) * 24 * time.Hour
}

// ScanPageSize is the oversampled page size used when pulling candidates.
func (c PayoutConfig) ScanPageSize() int {
	factor := c.OversampleFactor
	if factor <= 0 {
		factor = 1
	}
	return c.BatchSize * factor
}

// payoutFile mirrors the payout section of payout.yml. Percents are kept as
// strings so they reach decimal.Decimal without a float round trip.
type payoutFile struct {
	WaitingPeriodDays      int           `mapstructure:"waitingPeriodDays" validate:"gte=0,lte=365"`
	InstructorSharePercent string        `mapstructure:"instructorSharePercent" validate:"required,numeric"`
	BatchSize              int           `mapstructure:"batchSize" validate:"gte=1,lte=10000"`
	SchedulingEnabled      bool          `mapstructure:"schedulingEnabled"`
	CommissionPercent      string        `mapstructure:"commissionPercent" validate:"required,numeric"`
	CommissionEnabled      bool          `mapstructure:"commissionEnabled"`
	OversampleFactor       int           `mapstructure:"oversampleFactor" validate:"gte=1,lte=20"`
	MaxScanPages           int           `mapstructure:"maxScanPages" validate:"gte=1"`
	SettlementInterval     time.Duration `mapstructure:"settlementInterval" validate:"gt=0"`
	ReportInterval         time.Duration `mapstructure:"reportInterval" validate:"gt=0"`
	MaintenanceInterval    time.Duration `mapstructure:"maintenanceInterval" validate:"gt=0"`
	JobRunRetention        time.Duration `mapstructure:"jobRunRetention" validate:"gt=0"`
	DispatchWorkers        int           `mapstructure:"dispatchWorkers" validate:"gte=1,lte=256"`
	DispatchQueueSize      int           `mapstructure:"dispatchQueueSize" validate:"gte=1"`
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		WaitingPeriodDays:      7,
		InstructorSharePercent: decimal.NewFromInt(70),
		BatchSize:              100,
		SchedulingEnabled:      true,
		CommissionPercent:      decimal.NewFromInt(10),
		CommissionEnabled:      true,
		OversampleFactor:       3,
		MaxScanPages:           5,
		SettlementInterval:     time.Hour,
		ReportInterval:         24 * time.Hour,
		MaintenanceInterval:    6 * time.Hour,
		JobRunRetention:        30 * 24 * time.Hour,
		DispatchWorkers:        4,
		DispatchQueueSize:      256,
	}
}

var payoutValidate = validator.New()

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

// NewPayoutConfigHolder loads payout.yml from the standard locations.
func NewPayoutConfigHolder(log *zap.Logger) (*PayoutConfigHolder, error) {
	return NewPayoutConfigHolderFromPaths(log, "/var/lib/payout/config", "/etc/payout", ".")
}

// NewPayoutConfigHolderFromPaths loads payout.yml from the given directories
// and keeps watching the file that was found.
func NewPayoutConfigHolderFromPaths(log *zap.Logger, paths ...string) (*PayoutConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("payout.config")

	v := viper.New()
	v.SetConfigName("payout")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("PAYOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setPayoutDefaults(v)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileFound = false
		log.Info("payout config file not found, using defaults")
	}

	cfg, err := decodePayoutConfig(v)
	if err != nil {
		return nil, err
	}

	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)

	if fileFound {
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePayoutConfig(v)
			if err != nil {
				log.Warn("invalid payout config ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("payout config reloaded", zap.String("file", e.Name))
		})
		v.WatchConfig()
	}

	return holder, nil
}

// NewStaticPayoutConfigHolder returns a holder that never reloads.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	if h == nil {
		return DefaultPayoutConfig()
	}
	cfg, ok := h.current.Load().(PayoutConfig)
	if !ok {
		return DefaultPayoutConfig()
	}
	return cfg
}

// Store replaces the active configuration after validating it.
func (h *PayoutConfigHolder) Store(cfg PayoutConfig) error {
	if err := validatePayoutConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func setPayoutDefaults(v *viper.Viper) {
	d := DefaultPayoutConfig()
	v.SetDefault("payout.waitingPeriodDays", d.WaitingPeriodDays)
	v.SetDefault("payout.instructorSharePercent", d.InstructorSharePercent.String())
	v.SetDefault("payout.batchSize", d.BatchSize)
	v.SetDefault("payout.schedulingEnabled", d.SchedulingEnabled)
	v.SetDefault("payout.commissionPercent", d.CommissionPercent.String())
	v.SetDefault("payout.commissionEnabled", d.CommissionEnabled)
	v.SetDefault("payout.oversampleFactor", d.OversampleFactor)
	v.SetDefault("payout.maxScanPages", d.MaxScanPages)
	v.SetDefault("payout.settlementInterval", d.SettlementInterval)
	v.SetDefault("payout.reportInterval", d.ReportInterval)
	v.SetDefault("payout.maintenanceInterval", d.MaintenanceInterval)
	v.SetDefault("payout.jobRunRetention", d.JobRunRetention)
	v.SetDefault("payout.dispatchWorkers", d.DispatchWorkers)
	v.SetDefault("payout.dispatchQueueSize", d.DispatchQueueSize)
}

func decodePayoutConfig(v *viper.Viper) (PayoutConfig, error) {
	// Unmarshal over AllSettings so file values, env overrides and defaults merge per key.
	var wrapper struct {
		Payout payoutFile `mapstructure:"payout"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return PayoutConfig{}, err
	}
	raw := wrapper.Payout
	if err := payoutValidate.Struct(raw); err != nil {
		return PayoutConfig{}, fmt.Errorf("payout config: %w", err)
	}

	share, err := decimal.NewFromString(strings.TrimSpace(raw.InstructorSharePercent))
	if err != nil {
		return PayoutConfig{}, fmt.Errorf("payout.instructorSharePercent: %w", err)
	}
	commission, err := decimal.NewFromString(strings.TrimSpace(raw.CommissionPercent))
	if err != nil {
		return PayoutConfig{}, fmt.Errorf("payout.commissionPercent: %w", err)
	}

	cfg := PayoutConfig{
		WaitingPeriodDays:      raw.WaitingPeriodDays,
		InstructorSharePercent: share,
		BatchSize:              raw.BatchSize,
		SchedulingEnabled:      raw.SchedulingEnabled,
		CommissionPercent:      commission,
		CommissionEnabled:      raw.CommissionEnabled,
		OversampleFactor:       raw.OversampleFactor,
		MaxScanPages:           raw.MaxScanPages,
		SettlementInterval:     raw.SettlementInterval,
		ReportInterval:         raw.ReportInterval,
		MaintenanceInterval:    raw.MaintenanceInterval,
		JobRunRetention:        raw.JobRunRetention,
		DispatchWorkers:        raw.DispatchWorkers,
		DispatchQueueSize:      raw.DispatchQueueSize,
	}
	if err := validatePayoutConfig(cfg); err != nil {
		return PayoutConfig{}, err
	}
	return cfg, nil
}

var hundred = decimal.NewFromInt(100)

func validatePayoutConfig(cfg PayoutConfig) error {
	if cfg.BatchSize <= 0 {
		return errors.New("payout.batchSize must be positive")
	}
	if cfg.WaitingPeriodDays < 0 {
		return errors.New("payout.waitingPeriodDays cannot be negative")
	}
	if cfg.InstructorSharePercent.IsNegative() || cfg.InstructorSharePercent.GreaterThan(hundred) {
		return errors.New("payout.instructorSharePercent must be within 0..100")
	}
	if cfg.CommissionPercent.IsNegative() || cfg.CommissionPercent.GreaterThan(hundred) {
		return errors.New("payout.commissionPercent must be within 0..100")
	}
	return nil
}
