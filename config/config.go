package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the given file (optional) with GOLDSTORY_*
// environment variables overriding file values, and applies defaults. The
// caller validates: startup brings the health endpoint up before rejecting a
// bad configuration, so operators can reach the process while it is degraded.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("goldstory")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", 1)
	v.SetDefault("log_format", "console")
	v.SetDefault("chain_id", 137) // Polygon
	v.SetDefault("server_port", 3000)
	v.SetDefault("data_dir", "data")
	v.SetDefault("event_polling_interval_seconds", 5)
	v.SetDefault("reconcile_interval_seconds", 60)

	v.SetDefault("policy.broker_ratio", 0.15)
	v.SetDefault("policy.swap_ratio", 0.60)
	v.SetDefault("policy.retained_ratio", 0.25)
	v.SetDefault("policy.slippage_bps", 50)
	v.SetDefault("policy.route_deadline_seconds", 1800)
	v.SetDefault("policy.gas_buffer_percent", 20)
	v.SetDefault("policy.swap_gas_ceiling", 600000)
	v.SetDefault("policy.min_gas_reserve", 0.01)
	v.SetDefault("policy.confirm_timeout_seconds", 120)
}
