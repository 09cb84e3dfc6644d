// Package config loads and validates the benchmarking core's configuration.
// The loader itself sits outside the core per spec.md §1 ("out of scope:
// the configuration file loader"), but a runnable repository still needs a
// concrete instance, so this package provides one in the teacher's idiom:
// a flat struct tree plus a thin YAML front end.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
)

// Config is the root configuration tree described in spec.md §6.
type Config struct {
	RPC      RPC      `yaml:"rpc"`
	Setup    Setup    `yaml:"setup"`
	Run      Run      `yaml:"run"`
	Report   Report   `yaml:"report"`
	Deployer Deployer `yaml:"deployer"`
}

// RPC holds the transport endpoint configuration.
type RPC struct {
	URL string `yaml:"url"`
	// WSURL is an optional websocket sibling endpoint used by the block
	// watcher's low-latency subscription mode (SPEC_FULL domain-stack
	// addition); when empty the watcher polls instead.
	WSURL string `yaml:"ws_url"`
}

// ContractArtifact is the "exactly one of v0/v1" contract entry shape.
type ContractArtifact struct {
	V0 *LegacyArtifact `yaml:"v0,omitempty"`
	V1 *SierraArtifact `yaml:"v1,omitempty"`
}

// LegacyArtifact locates a Cairo 0 (legacy) compiled contract.
type LegacyArtifact struct {
	Path string `yaml:"path"`
}

// SierraArtifact locates a Cairo 1 (Sierra) compiled contract.
type SierraArtifact struct {
	Path     string `yaml:"path"`
	CasmPath string `yaml:"casm_path"`
}

// Setup configures the one-shot setup orchestrator (spec §4.C).
type Setup struct {
	ERC20Contract   ContractArtifact `yaml:"erc20_contract"`
	ERC721Contract  ContractArtifact `yaml:"erc721_contract"`
	AccountContract ContractArtifact `yaml:"account_contract"`
	FeeTokenAddress string           `yaml:"fee_token_address"`
	NumAccounts     uint32           `yaml:"num_accounts"`
	ChainID         string           `yaml:"chain_id"`
	// UDCAddress locates the Universal Deployer Contract instance used to
	// deploy the ERC20/ERC721 benchmark token instances (SPEC_FULL
	// domain-stack addition; defaults to Starknet's well-known UDC address).
	UDCAddress string `yaml:"udc_address"`
	// InitialFeeBalance is the amount of fee token transferred to each
	// derived account before its deploy_account transaction is submitted,
	// in hex form (parsed with felt.FromHex; the "0x" prefix is optional).
	InitialFeeBalance string `yaml:"initial_fee_balance"`
	// InitialTokenBalance is the amount of the benchmark ERC20 minted to
	// each derived account so the transfer shooter has funds to move.
	InitialTokenBalance string `yaml:"initial_token_balance"`
}

// defaultUDCAddress is Starknet's well-known Universal Deployer Contract
// address, identical across mainnet, sepolia and most devnets.
const defaultUDCAddress = "0x041a78e741e5af2fec34b695679bc6891742439f7afb8484ecd7766661ad02"

// UDC returns the configured UDC address, defaulting to Starknet's
// well-known deployment.
func (s Setup) UDC() string {
	if s.UDCAddress == "" {
		return defaultUDCAddress
	}
	return s.UDCAddress
}

// FeeBalance returns the configured per-account funding amount, defaulting
// to a value comfortably covering a benchmark run's transaction fees.
func (s Setup) FeeBalance() string {
	if s.InitialFeeBalance == "" {
		return "0x16345785d8a0000" // 0.1 * 10^18
	}
	return s.InitialFeeBalance
}

// TokenBalance returns the configured per-account ERC20 seed balance.
func (s Setup) TokenBalance() string {
	if s.InitialTokenBalance == "" {
		return "0x3b9aca00" // 10^9, plenty of headroom for small transfer amounts
	}
	return s.InitialTokenBalance
}

// ShooterConfig names one configured write-shooter invocation.
type ShooterConfig struct {
	Name  string `yaml:"name"` // "transfer" | "mint"
	Shoot uint64 `yaml:"shoot"`
}

// ReadBenchConfig names one configured read-only workload.
type ReadBenchConfig struct {
	Name               string `yaml:"name"`
	NumRequests        uint64 `yaml:"num_requests"`
	Method             string `yaml:"method"`
	ParametersLocation string `yaml:"parameters_location"`
}

// Run configures the load phase.
type Run struct {
	Concurrency           uint32            `yaml:"concurrency"`
	Shooters              []ShooterConfig   `yaml:"shooters"`
	ReadBenches           []ReadBenchConfig `yaml:"read_benches"`
	MaxWaitMS             uint64            `yaml:"max_wait_ms"`
	BlockWatchTimeoutMS   uint64            `yaml:"block_watch_timeout_ms"`
	// BlockTimeMS is the target chain block time, used to size the block
	// watcher's polling interval (block_time/4, floored at 250ms) when no
	// websocket endpoint is configured.
	BlockTimeMS uint64 `yaml:"block_time_ms"`
	// MaxFeeHex bounds every transaction a shooter submits, in hex form
	// (parsed with felt.FromHex; SPEC_FULL domain-stack addition distinct from
	// setup.initial_fee_balance, which only sizes the one-time funding
	// transfer each account receives before it starts shooting).
	MaxFeeHex string `yaml:"max_fee_hex"`
}

// PollInterval returns the block watcher's polling cadence, defaulting to
// spec.md §4.F's block_time/4 floored at 250ms.
func (r Run) PollInterval() time.Duration {
	blockTime := 2 * time.Second
	if r.BlockTimeMS > 0 {
		blockTime = time.Duration(r.BlockTimeMS) * time.Millisecond
	}
	interval := blockTime / 4
	if interval < 250*time.Millisecond {
		interval = 250 * time.Millisecond
	}
	return interval
}

// MaxWait returns the verification deadline, defaulting per SPEC_FULL's
// Open Question resolution.
func (r Run) MaxWait() time.Duration {
	if r.MaxWaitMS == 0 {
		return 30 * time.Second
	}
	return time.Duration(r.MaxWaitMS) * time.Millisecond
}

// MaxFeeHexOrDefault returns the configured per-transaction fee bound for
// shooter submissions, defaulting to a generous literal sized for a devnet
// or low-gas test network, matching the setup orchestrator's own default.
func (r Run) MaxFeeHexOrDefault() string {
	if r.MaxFeeHex == "" {
		return "0xde0b6b3a7640000" // 10^18
	}
	return r.MaxFeeHex
}

// BlockWatchTimeout returns the block watcher's fatal-escalation deadline.
func (r Run) BlockWatchTimeout() time.Duration {
	if r.BlockWatchTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(r.BlockWatchTimeoutMS) * time.Millisecond
}

// Report configures the report writer (spec §4.G).
type Report struct {
	NumBlocks      uint32 `yaml:"num_blocks"`
	OutputLocation string `yaml:"output_location"`
	// HistoryDBPath is an optional SQLite history database (SPEC_FULL
	// domain-stack addition); empty disables history persistence.
	HistoryDBPath string `yaml:"history_db_path"`
	// MetricsListenAddr optionally exposes live Prometheus metrics while a
	// shooter runs (SPEC_FULL domain-stack addition); empty disables it.
	MetricsListenAddr string `yaml:"metrics_listen_addr"`
}

// Deployer configures the fee-paying account used throughout setup.
type Deployer struct {
	Address       string `yaml:"address"`
	SigningKey    string `yaml:"signing_key"`
	Salt          uint32 `yaml:"salt"`
	LegacyAccount bool   `yaml:"legacy_account"`
}

// Load reads and parses a YAML configuration file, then validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.New(errkind.Config, fmt.Errorf("reading config %q: %w", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, errkind.New(errkind.Config, fmt.Errorf("parsing config %q: %w", path, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, errkind.New(errkind.Config, err)
	}
	return &cfg, nil
}

// Validate checks the structural invariants spec.md §6 requires, fatal
// before any RPC call is made.
func (c *Config) Validate() error {
	if c.RPC.URL == "" {
		return fmt.Errorf("rpc.url is required")
	}
	if err := c.Setup.ERC20Contract.validate("setup.erc20_contract"); err != nil {
		return err
	}
	if err := c.Setup.ERC721Contract.validate("setup.erc721_contract"); err != nil {
		return err
	}
	if err := c.Setup.AccountContract.validate("setup.account_contract"); err != nil {
		return err
	}
	if c.Setup.NumAccounts < 1 {
		return fmt.Errorf("setup.num_accounts must be >= 1")
	}
	if c.Run.Concurrency < 1 {
		return fmt.Errorf("run.concurrency must be >= 1")
	}
	for _, s := range c.Run.Shooters {
		if s.Name != "transfer" && s.Name != "mint" {
			return fmt.Errorf("run.shooters: unknown shooter name %q", s.Name)
		}
	}
	if c.Report.NumBlocks < 1 {
		return fmt.Errorf("report.num_blocks must be >= 1")
	}
	if c.Report.OutputLocation == "" {
		return fmt.Errorf("report.output_location is required")
	}
	return nil
}

func (a ContractArtifact) validate(field string) error {
	switch {
	case a.V0 != nil && a.V1 != nil:
		return fmt.Errorf("%s: exactly one of v0/v1 must be set, got both", field)
	case a.V0 == nil && a.V1 == nil:
		return fmt.Errorf("%s: exactly one of v0/v1 must be set, got neither", field)
	case a.V0 != nil && a.V0.Path == "":
		return fmt.Errorf("%s.v0.path is required", field)
	case a.V1 != nil && (a.V1.Path == "" || a.V1.CasmPath == ""):
		return fmt.Errorf("%s.v1.path and casm_path are required", field)
	}
	return nil
}
