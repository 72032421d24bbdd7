// Package config parses and validates the process configuration
// (spec.md §6) from a single flat go-flags struct.
package config

import (
	"fmt"
	"strings"
)

// Config is the flat set of configuration keys for cmd/ethproofs-prover.
// Field tags follow the `long`/`env`/`description` convention every
// cmd/*/main.go in the teacher uses.
type Config struct {
	EthRpcURL string `long:"eth-rpc-url" env:"ETHPROOFS_ETH_RPC_URL" description:"Upstream Ethereum JSON-RPC endpoint"`
	ElfPath   string `long:"elf-path" env:"ETHPROOFS_ELF_PATH" description:"Guest ELF passed to cargo-zisk prove -e"`

	EthProofsRpcURL    string `long:"ethproofs-rpc-url" env:"ETHPROOFS_ETHPROOFS_RPC_URL" description:"Base URL for the EthProofs submission API"`
	EthProofsApiKey    string `long:"ethproofs-api-key" env:"ETHPROOFS_ETHPROOFS_API_KEY" description:"Bearer token for the EthProofs submission API"`
	EthProofsClusterID int64  `long:"ethproofs-cluster-id" env:"ETHPROOFS_ETHPROOFS_CLUSTER_ID" description:"Cluster id included in every EthProofs submission"`

	Dev bool `long:"dev" env:"ETHPROOFS_DEV" description:"Run without EthProofs submission credentials; logs are development-formatted"`

	SlackWebhook string `long:"slack-webhook" env:"ETHPROOFS_SLACK_WEBHOOK" description:"Webhook URL for pipeline notifications; if absent, notifications are silently dropped"`

	HealthPort int `long:"health-port" env:"ETHPROOFS_HEALTH_PORT" default:"4000" description:"HTTP port for health endpoints"`

	ProverStuckThresholdSeconds int `long:"prover-stuck-threshold-seconds" env:"ETHPROOFS_PROVER_STUCK_THRESHOLD_SECONDS" default:"3600" description:"Seconds a single proving run may run before StatusSurface reports degraded"`

	ClickhouseDSN string `long:"clickhouse-dsn" env:"ETHPROOFS_CLICKHOUSE_DSN" default:"clickhouse://localhost:9000/default" description:"ClickHouse DSN for the proved/missed block ledgers"`

	InputBuilderPath string `long:"input-builder-path" env:"ETHPROOFS_INPUT_BUILDER_PATH" default:"build_input" description:"Native helper binary that turns block+witness JSON into a prover input artifact"`
}

// Validate checks the required-key rules of spec.md §4.9: eth_rpc_url and
// elf_path are always required; unless dev, the EthProofs submission
// credentials are too. All missing keys are reported in a single error
// rather than failing on the first one found.
func (c Config) Validate() error {
	var missing []string

	if c.EthRpcURL == "" {
		missing = append(missing, "eth_rpc_url")
	}
	if c.ElfPath == "" {
		missing = append(missing, "elf_path")
	}
	if !c.Dev {
		if c.EthProofsRpcURL == "" {
			missing = append(missing, "ethproofs_rpc_url")
		}
		if c.EthProofsApiKey == "" {
			missing = append(missing, "ethproofs_api_key")
		}
		if c.EthProofsClusterID == 0 {
			missing = append(missing, "ethproofs_cluster_id")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
