// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// The executor receives planted-block notifications, runs the nonce search
// and the work/harvest bursts, settles farmer exits and serves the pool API.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kalepool/kalepool/api"
	"github.com/kalepool/kalepool/chain/chainhttp"
	"github.com/kalepool/kalepool/executor"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/httpserver"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/metrics"
	"github.com/kalepool/kalepool/miner"
	"github.com/kalepool/kalepool/pooldb"
	"github.com/kalepool/kalepool/settle"
	"github.com/kalepool/kalepool/wallet"
)

var (
	version   string
	gitCommit string
	gitTag    string

	logger = log.WithContext("pkg", "main")
)

func fullVersion() string {
	versionMeta := "release"
	if gitTag == "" {
		versionMeta = "dev"
	}
	return fmt.Sprintf("%s-%s-%s", version, gitCommit, versionMeta)
}

func main() {
	app := cli.App{
		Version:   fullVersion(),
		Name:      "KalePool Executor",
		Usage:     "Work, harvest and settlement service of the KalePool mining pool",
		Copyright: "2026 The KalePool developers",
		Flags: []cli.Flag{
			rpcURLFlag,
			networkPassphraseFlag,
			contractIDFlag,
			databaseURLFlag,
			poolerIDFlag,
			poolerTokenFlag,
			keystoreKeyFlag,
			platformWalletFlag,
			apiAddrFlag,
			apiCorsFlag,
			targetZerosFlag,
			workDelayFlag,
			workDeadlineFlag,
			harvestConcurrencyFlag,
			settleConcurrencyFlag,
			minerBinFlag,
			minerNonceCountFlag,
			enableReqLoggerFlag,
			enableMetricsFlag,
			metricsAddrFlag,
			enableAdminFlag,
			adminAddrFlag,
			verbosityFlag,
			jsonLogsFlag,
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	defer func() { logger.Info("exited") }()

	logLevel := initLogger(ctx)

	poolerID, err := uuid.Parse(ctx.String(poolerIDFlag.Name))
	if err != nil {
		return errors.Wrap(err, "--pooler-id")
	}
	platformWallet, err := kale.ParseAddress(ctx.String(platformWalletFlag.Name))
	if err != nil {
		return errors.Wrap(err, "--platform-wallet")
	}
	keys, err := wallet.NewKeystore(ctx.String(keystoreKeyFlag.Name))
	if err != nil {
		return errors.Wrap(err, "--keystore-key")
	}

	store, err := pooldb.Open(&pooldb.Options{DSN: ctx.String(databaseURLFlag.Name)})
	if err != nil {
		return errors.Wrap(err, "open pool database")
	}
	defer func() { logger.Info("closing pool database..."); store.Close() }()

	chainClient := chainhttp.New(chainhttp.Options{
		URL:               strings.TrimSuffix(ctx.String(rpcURLFlag.Name), "/"),
		NetworkPassphrase: ctx.String(networkPassphraseFlag.Name),
		ContractID:        ctx.String(contractIDFlag.Name),
	})

	healthTracker := health.New(0)
	probeCtx, stopProbes := context.WithCancel(context.Background())
	go probeHealth(probeCtx, store, chainClient, healthTracker)
	defer stopProbes()

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc, err := httpserver.StartMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return errors.Wrap(err, "start metrics server")
		}
		logger.Info("metrics server started", "url", url)
		defer func() { logger.Info("stopping metrics server..."); closeFunc() }()
	}

	logRequests := new(atomic.Bool)
	logRequests.Store(ctx.Bool(enableReqLoggerFlag.Name))

	if ctx.Bool(enableAdminFlag.Name) {
		url, closeFunc, err := httpserver.StartAdminServer(
			ctx.String(adminAddrFlag.Name), logLevel, healthTracker, logRequests)
		if err != nil {
			return errors.Wrap(err, "start admin server")
		}
		logger.Info("admin server started", "url", url)
		defer func() { logger.Info("stopping admin server..."); closeFunc() }()
	}

	searcher := miner.New(&miner.Options{Bin: ctx.String(minerBinFlag.Name)})

	exec := executor.New(store, chainClient, keys, searcher, &executor.Options{
		PoolerID:           poolerID,
		TargetZeros:        uint32(ctx.Uint64(targetZerosFlag.Name)),
		WorkDelay:          time.Duration(ctx.Uint64(workDelayFlag.Name)) * time.Second,
		WorkDeadline:       time.Duration(ctx.Uint64(workDeadlineFlag.Name)) * time.Second,
		HarvestConcurrency: int64(ctx.Uint64(harvestConcurrencyFlag.Name)),
		NonceCount:         ctx.Uint64(minerNonceCountFlag.Name),
	})
	defer func() { logger.Info("stopping executor..."); exec.Close() }()

	settler := settle.New(store, chainClient, keys, &settle.Options{
		PlatformWallet: platformWallet,
		Concurrency:    int64(ctx.Uint64(settleConcurrencyFlag.Name)),
	})
	defer func() { logger.Info("stopping settlement engine..."); settler.Close() }()

	apiHandler := api.New(exec, settler, store, healthTracker, api.Options{
		PoolerToken:    ctx.String(poolerTokenFlag.Name),
		AllowedOrigins: ctx.String(apiCorsFlag.Name),
		Role:           "executor",
		EnableMetrics:  ctx.Bool(enableMetricsFlag.Name),
		LogRequests:    logRequests,
	})
	apiURL, closeAPI, err := httpserver.StartAPIServer(ctx.String(apiAddrFlag.Name), apiHandler)
	if err != nil {
		return errors.Wrap(err, "start API server")
	}
	defer func() { logger.Info("stopping API server..."); closeAPI() }()

	printStartupMessage(poolerID, apiURL, ctx)

	<-handleExitSignal().Done()

	forceExitAfterDrain()
	return nil
}

func printStartupMessage(poolerID uuid.UUID, apiURL string, ctx *cli.Context) {
	fmt.Printf(`Starting %v
    Pooler       [ %v ]
    Chain RPC    [ %v ]
    API portal   [ %v ]
    Work window  [ +%vs, deadline %vs ]
    Miner        [ %v ]
`,
		common.MakeName("KalePool Executor", fullVersion()),
		poolerID,
		ctx.String(rpcURLFlag.Name),
		apiURL,
		ctx.Uint64(workDelayFlag.Name), ctx.Uint64(workDeadlineFlag.Name),
		ctx.String(minerBinFlag.Name))
}
