package config

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Config is the immutable process configuration, constructed once at startup
// and injected into every component. Components never read ambient process
// state directly.
type Config struct {
	// Log config
	LogLevel  int    `mapstructure:"log_level"`  // zerolog levels: -1 trace .. 5 panic
	LogFormat string `mapstructure:"log_format"` // "json" or "console"

	// Ledger access
	RPCURLs []string `mapstructure:"rpc_urls"` // EVM JSON-RPC endpoints
	ChainID int64    `mapstructure:"chain_id"` // expected chain ID, verified at dial time

	// Accounts and assets
	ReceiverAddress    string `mapstructure:"receiver_address"`     // wallet watched for incoming USDC
	BrokerAddress      string `mapstructure:"broker_address"`       // fixed recipient of the broker share
	SettlementAsset    string `mapstructure:"settlement_asset"`     // USDC contract address (6 decimals)
	OutputAsset        string `mapstructure:"output_asset"`         // token delivered to the payer (18 decimals)
	OperatorPrivateKey string `mapstructure:"operator_private_key"` // hex key of the operating account

	// Routing service
	RouterURL string `mapstructure:"router_url"` // external route-resolution service base URL

	// Notifications
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramChatID   string `mapstructure:"telegram_chat_id"`

	// HTTP server
	ServerPort int `mapstructure:"server_port"` // health/status/metrics port

	// Storage
	DataDir string `mapstructure:"data_dir"` // directory for the sqlite case log

	// Event ingestion
	EventPollingIntervalSeconds int `mapstructure:"event_polling_interval_seconds"`

	// Reconciler
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`

	Policy Policy `mapstructure:"policy"`
}

// Policy gathers every numeric policy constant that was scattered inline in
// earlier drafts. Validated once at startup.
type Policy struct {
	BrokerRatio   float64 `mapstructure:"broker_ratio"`   // share forwarded to the broker (0.15)
	SwapRatio     float64 `mapstructure:"swap_ratio"`     // share converted for the payer (0.60)
	RetainedRatio float64 `mapstructure:"retained_ratio"` // share left in the operating account (0.25)

	SlippageBps          int64   `mapstructure:"slippage_bps"`           // swap slippage tolerance in basis points
	RouteDeadlineSeconds int64   `mapstructure:"route_deadline_seconds"` // route validity window
	GasBufferPercent     int64   `mapstructure:"gas_buffer_percent"`     // safety buffer applied to gas estimates
	SwapGasCeiling       uint64  `mapstructure:"swap_gas_ceiling"`       // fixed gas limit for swap submissions
	MinGasReserve        float64 `mapstructure:"min_gas_reserve"`        // minimum native balance before a swap starts
	ConfirmTimeoutSeconds int64  `mapstructure:"confirm_timeout_seconds"` // receipt wait bound
}

// ratioTolerance bounds float drift when checking that the ratios sum to 1.
const ratioTolerance = 1e-9

// Validate checks the full configuration. The receiving account and settlement
// asset are the ingestion-critical fields; their absence must keep the listener
// down while the rest of the process stays alive.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("at least one rpc url is required")
	}
	if c.BrokerAddress == "" {
		return fmt.Errorf("broker address is required")
	}
	if c.OutputAsset == "" {
		return fmt.Errorf("output asset address is required")
	}
	if c.OperatorPrivateKey == "" {
		return fmt.Errorf("operator private key is required")
	}
	if c.RouterURL == "" {
		return fmt.Errorf("router url is required")
	}
	return c.Policy.Validate()
}

// ValidateIngestion checks only the fields the event ingestion adapter needs.
// A failure here is fatal to ingestion but not to the process.
func (c *Config) ValidateIngestion() error {
	if c.ReceiverAddress == "" {
		return fmt.Errorf("receiver address is required for event ingestion")
	}
	if c.SettlementAsset == "" {
		return fmt.Errorf("settlement asset address is required for event ingestion")
	}
	return nil
}

// Validate enforces the policy invariants: ratios non-negative and summing to
// exactly 1, percentages and bounds positive.
func (p *Policy) Validate() error {
	if p.BrokerRatio < 0 || p.SwapRatio < 0 || p.RetainedRatio < 0 {
		return fmt.Errorf("split ratios must be non-negative")
	}
	sum := p.BrokerRatio + p.SwapRatio + p.RetainedRatio
	if sum < 1-ratioTolerance || sum > 1+ratioTolerance {
		return fmt.Errorf("split ratios must sum to 1.0, got %v", sum)
	}
	if p.SlippageBps <= 0 || p.SlippageBps >= 10_000 {
		return fmt.Errorf("slippage must be between 1 and 9999 bps")
	}
	if p.RouteDeadlineSeconds <= 0 {
		return fmt.Errorf("route deadline must be positive")
	}
	if p.GasBufferPercent < 0 {
		return fmt.Errorf("gas buffer percent must be non-negative")
	}
	if p.SwapGasCeiling == 0 {
		return fmt.Errorf("swap gas ceiling must be positive")
	}
	if p.MinGasReserve < 0 {
		return fmt.Errorf("minimum gas reserve must be non-negative")
	}
	if p.ConfirmTimeoutSeconds <= 0 {
		return fmt.Errorf("confirmation timeout must be positive")
	}
	return nil
}

// BrokerRatioDecimal returns the broker split as a decimal.
func (p *Policy) BrokerRatioDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.BrokerRatio)
}

// SwapRatioDecimal returns the swap split as a decimal.
func (p *Policy) SwapRatioDecimal() decimal.Decimal {
	return decimal.NewFromFloat(p.SwapRatio)
}
