// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds every tunable of the gateway process. Values come from
// ORCHESTRA_-prefixed environment variables.
type Config struct {
	// Addr is the listen address of the websocket and HTTP gateway.
	Addr string `envconfig:"ADDR" default:":8080"`

	// LogLevel is the zerolog level name.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// LogPretty switches to console output for local runs.
	LogPretty bool `envconfig:"LOG_PRETTY" default:"false"`

	// FinancialAgentCardURL is the well-known descriptor of the remote
	// financial-data agent.
	FinancialAgentCardURL string `envconfig:"FINANCIAL_AGENT_CARD_URL" default:"http://localhost:8001/a2a/financial_agent/.well-known/agent-card.json"`

	// RemoteTimeout bounds each remote agent call.
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"60s"`

	// ApprovalTimeout bounds how long a gated action waits for a human
	// decision before expiring.
	ApprovalTimeout time.Duration `envconfig:"APPROVAL_TIMEOUT" default:"120s"`

	// MaxDelegationDepth caps agent-as-tool nesting.
	MaxDelegationDepth int `envconfig:"MAX_DELEGATION_DEPTH" default:"5"`

	// AnthropicAPIKey enables the LLM planner when set. Empty selects the
	// deterministic rules planner.
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`

	// AnthropicModel is the model used by the LLM planner.
	AnthropicModel string `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-20250514"`

	// InsightsSchedule is the cron expression for the proactive insights
	// digest. Empty disables the scheduler.
	InsightsSchedule string `envconfig:"INSIGHTS_SCHEDULE" default:"0 8 * * *"`
}

// Load reads a .env file if present, then binds ORCHESTRA_* environment
// variables into a Config.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err == nil {
		for _, key := range v.AllKeys() {
			// Exported so envconfig sees .env values like real env vars.
			if err := setIfUnset(key, v.GetString(key)); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := envconfig.Process("orchestra", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main functions; it panics on invalid configuration.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// setIfUnset exports a .env value unless the real environment already sets
// it; the environment always wins.
func setIfUnset(key, value string) error {
	name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if _, ok := os.LookupEnv(name); ok {
		return nil
	}
	return os.Setenv(name, value)
}
