// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// The discoverer watches the chain head, plants eligible farmers into fresh
// blocks and notifies the executor of the planted set.
package main

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kalepool/kalepool/chain/chainhttp"
	"github.com/kalepool/kalepool/discoverer"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/httpserver"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/metrics"
	"github.com/kalepool/kalepool/pooldb"
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
		Name:      "KalePool Discoverer",
		Usage:     "Block discovery and planting service of the KalePool mining pool",
		Copyright: "2026 The KalePool developers",
		Flags: []cli.Flag{
			rpcURLFlag,
			networkPassphraseFlag,
			contractIDFlag,
			databaseURLFlag,
			poolerIDFlag,
			poolerTokenFlag,
			keystoreKeyFlag,
			executorURLFlag,
			pollIntervalFlag,
			plantAgeFlag,
			plantConcurrencyFlag,
			baseStakeFlag,
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

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
		url, closeFunc, err := httpserver.StartMetricsServer(ctx.String(metricsAddrFlag.Name))
		if err != nil {
			return errors.Wrap(err, "start metrics server")
		}
		logger.Info("metrics server started", "url", url)
		defer func() { logger.Info("stopping metrics server..."); closeFunc() }()
	}

	if ctx.Bool(enableAdminFlag.Name) {
		url, closeFunc, err := httpserver.StartAdminServer(
			ctx.String(adminAddrFlag.Name), logLevel, healthTracker, new(atomic.Bool))
		if err != nil {
			return errors.Wrap(err, "start admin server")
		}
		logger.Info("admin server started", "url", url)
		defer func() { logger.Info("stopping admin server..."); closeFunc() }()
	}

	notifier := discoverer.NewHTTPNotifier(
		ctx.String(executorURLFlag.Name), ctx.String(poolerTokenFlag.Name))

	disco := discoverer.New(store, chainClient, keys, notifier, healthTracker, &discoverer.Options{
		PoolerID:     poolerID,
		PollInterval: time.Duration(ctx.Uint64(pollIntervalFlag.Name)) * time.Second,
		PlantAge:     time.Duration(ctx.Uint64(plantAgeFlag.Name)) * time.Second,
		Concurrency:  int64(ctx.Uint64(plantConcurrencyFlag.Name)),
		BaseStake:    kale.Stroops(ctx.Uint64(baseStakeFlag.Name)),
	})
	defer func() { logger.Info("stopping discoverer..."); disco.Close() }()

	printStartupMessage(poolerID, ctx)

	<-handleExitSignal().Done()

	forceExitAfterDrain()
	return nil
}

func printStartupMessage(poolerID uuid.UUID, ctx *cli.Context) {
	fmt.Printf(`Starting %v
    Pooler       [ %v ]
    Chain RPC    [ %v ]
    Executor     [ %v ]
    Plant age    [ %vs, cutoff %vs ]
`,
		common.MakeName("KalePool Discoverer", fullVersion()),
		poolerID,
		ctx.String(rpcURLFlag.Name),
		ctx.String(executorURLFlag.Name),
		ctx.Uint64(plantAgeFlag.Name), kale.PlantCutoff)
}
