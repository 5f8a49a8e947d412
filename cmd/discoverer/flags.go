// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
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
		Usage:  "farm contract id targeted by plant transactions",
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
		Usage:  "bearer token authenticating notifications to the executor",
		EnvVar: "POOLER_TOKEN",
	}
	keystoreKeyFlag = cli.StringFlag{
		Name:   "keystore-key",
		Usage:  "master key unsealing custodial wallet secrets",
		EnvVar: "KEYSTORE_KEY",
	}
	executorURLFlag = cli.StringFlag{
		Name:   "executor-url",
		Value:  "http://localhost:8080",
		Usage:  "base URL of the executor API",
		EnvVar: "EXECUTOR_URL",
	}
	pollIntervalFlag = cli.Uint64Flag{
		Name:   "poll-interval",
		Value:  5,
		Usage:  "chain head poll interval in seconds, clamped to [1, 30]",
		EnvVar: "POLL_INTERVAL",
	}
	plantAgeFlag = cli.Uint64Flag{
		Name:   "plant-age",
		Value:  kale.PlantAge,
		Usage:  "head age in seconds at which planting opens",
		EnvVar: "PLANT_AGE_SECONDS",
	}
	plantConcurrencyFlag = cli.Uint64Flag{
		Name:   "plant-concurrency",
		Value:  kale.PlantConcurrency,
		Usage:  "maximum simultaneous plant transactions",
		EnvVar: "PLANT_CONCURRENCY",
	}
	baseStakeFlag = cli.Uint64Flag{
		Name:   "base-stake",
		Value:  uint64(kale.DefaultBaseStake),
		Usage:  "full-rate stake per plant in stroops",
		EnvVar: "BASE_STAKE",
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
