// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/miner"
)

var (
	rpcURLFlag = cli.StringFlag{
		Name:   "rpc-url",
		Usage:  "chain RPC base URL",
		EnvVar: "KALE_RPC_URL",
	}
	networkPassphraseFlag = cli.StringFlag{
		Name:   "network-passphrase",
		Usage:  "network passphrase separating transaction signature domains",
		EnvVar: "KALE_NETWORK_PASSPHRASE",
	}
	contractIDFlag = cli.StringFlag{
		Name:   "contract-id",
		Usage:  "farm contract id targeted by work/harvest transactions",
		EnvVar: "KALE_CONTRACT_ID",
	}
	databaseURLFlag = cli.StringFlag{
		Name:   "database-url",
		Usage:  "postgres URL of the pool database",
		EnvVar: "DATABASE_URL",
	}
	poolerIDFlag = cli.StringFlag{
		Name:   "pooler-id",
		Usage:  "UUID identifying this pooler",
		EnvVar: "POOLER_ID",
	}
	poolerTokenFlag = cli.StringFlag{
		Name:   "pooler-token",
		Usage:  "bearer token expected on discoverer notifications",
		EnvVar: "POOLER_TOKEN",
	}
	keystoreKeyFlag = cli.StringFlag{
		Name:   "keystore-key",
		Usage:  "master key unsealing custodial wallet secrets",
		EnvVar: "KEYSTORE_KEY",
	}
	platformWalletFlag = cli.StringFlag{
		Name:   "platform-wallet",
		Usage:  "address receiving the platform fee on exits",
		EnvVar: "PLATFORM_WALLET",
	}
	apiAddrFlag = cli.StringFlag{
		Name:   "api-addr",
		Value:  "localhost:8080",
		Usage:  "API service listening address",
		EnvVar: "API_ADDR",
	}
	apiCorsFlag = cli.StringFlag{
		Name:   "api-cors",
		Value:  "",
		Usage:  "comma separated list of domains from which to accept cross origin requests to API",
		EnvVar: "API_CORS",
	}
	targetZerosFlag = cli.Uint64Flag{
		Name:   "target-zeros",
		Value:  uint64(kale.DefaultTargetZeros),
		Usage:  "leading hex zeros requested from the nonce search",
		EnvVar: "TARGET_ZEROS",
	}
	workDelayFlag = cli.Uint64Flag{
		Name:   "work-delay",
		Value:  kale.WorkDelay,
		Usage:  "seconds after block start before work submission",
		EnvVar: "WORK_DELAY_SECONDS",
	}
	workDeadlineFlag = cli.Uint64Flag{
		Name:   "work-deadline",
		Value:  kale.WorkDeadline,
		Usage:  "seconds after the delay in which all work must land",
		EnvVar: "WORK_DEADLINE_SECONDS",
	}
	harvestConcurrencyFlag = cli.Uint64Flag{
		Name:   "harvest-concurrency",
		Value:  kale.HarvestConcurrency,
		Usage:  "maximum simultaneous harvest transactions",
		EnvVar: "HARVEST_CONCURRENCY",
	}
	settleConcurrencyFlag = cli.Uint64Flag{
		Name:   "settle-concurrency",
		Value:  kale.SettleConcurrency,
		Usage:  "maximum exits settled in parallel",
		EnvVar: "SETTLE_CONCURRENCY",
	}
	minerBinFlag = cli.StringFlag{
		Name:   "miner-bin",
		Value:  "kale-miner",
		Usage:  "path of the nonce-search binary",
		EnvVar: "MINER_BIN",
	}
	minerNonceCountFlag = cli.Uint64Flag{
		Name:   "miner-nonce-count",
		Value:  miner.DefaultNonceCount,
		Usage:  "nonce budget per search run",
		EnvVar: "MINER_NONCE_COUNT",
	}
	enableReqLoggerFlag = cli.BoolFlag{
		Name:   "enable-req-logger",
		Usage:  "enables API request logging",
		EnvVar: "ENABLE_REQ_LOGGER",
	}
	enableMetricsFlag = cli.BoolFlag{
		Name:   "enable-metrics",
		Usage:  "enables metrics collection",
		EnvVar: "ENABLE_METRICS",
	}
	metricsAddrFlag = cli.StringFlag{
		Name:   "metrics-addr",
		Value:  "localhost:2112",
		Usage:  "metrics service listening address",
		EnvVar: "METRICS_ADDR",
	}
	enableAdminFlag = cli.BoolFlag{
		Name:   "enable-admin",
		Usage:  "enables admin server",
		EnvVar: "ENABLE_ADMIN",
	}
	adminAddrFlag = cli.StringFlag{
		Name:   "admin-addr",
		Value:  "localhost:2113",
		Usage:  "admin service listening address",
		EnvVar: "ADMIN_ADDR",
	}
	verbosityFlag = cli.Uint64Flag{
		Name:   "verbosity",
		Value:  log.LegacyLevelInfo,
		Usage:  "log verbosity (0-9)",
		EnvVar: "VERBOSITY",
	}
	jsonLogsFlag = cli.BoolFlag{
		Name:   "json-logs",
		Usage:  "output logs in JSON format",
		EnvVar: "JSON_LOGS",
	}
)
