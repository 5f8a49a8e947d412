// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/kalepool/kalepool/chain"
	"github.com/kalepool/kalepool/health"
	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
	"github.com/kalepool/kalepool/pooldb"
)

const probeInterval = 30 * time.Second

func initLogger(ctx *cli.Context) *slog.LevelVar {
	level := new(slog.LevelVar)
	level.Set(log.FromLegacyLevel(int(ctx.Uint64(verbosityFlag.Name))))
	log.InitLogger(level, ctx.Bool(jsonLogsFlag.Name))
	return level
}

func handleExitSignal() context.Context {
	exitSignalCtx, cancel := context.WithCancel(context.Background())
	go func() {
		exitSignalCh := make(chan os.Signal, 1)
		signal.Notify(exitSignalCh, os.Interrupt, syscall.SIGTERM)

		sig := <-exitSignalCh
		logger.Info("exit signal received", "signal", sig)
		cancel()
	}()
	return exitSignalCtx
}

// forceExitAfterDrain caps the shutdown at the drain budget so a wedged
// burst cannot hold the process open.
func forceExitAfterDrain() {
	go func() {
		time.Sleep(time.Duration(kale.DrainSeconds) * time.Second)
		logger.Error("drain budget exceeded, forcing exit")
		os.Exit(1)
	}()
}

// probeHealth keeps the health tracker fed. The discoverer process probes
// from its own housekeeping loop; the executor watches the shared store for
// the newest block instead, since both processes trust the database over
// their own view of the chain. The best block is fed only when the index
// advances so staleness still fires when discovery stalls.
func probeHealth(ctx context.Context, store *pooldb.Store, chainAdapter chain.Adapter, tracker *health.Health) {
	var lastIndex uint32
	for {
		lastIndex = probeOnce(ctx, store, chainAdapter, tracker, lastIndex)
		select {
		case <-ctx.Done():
			return
		case <-time.After(probeInterval):
		}
	}
}

func probeOnce(ctx context.Context, store *pooldb.Store, chainAdapter chain.Adapter, tracker *health.Health, lastIndex uint32) uint32 {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	best := lastIndex
	var g errgroup.Group
	g.Go(func() error {
		tracker.ChainOK(chainAdapter.Health(ctx) == nil)
		return nil
	})
	g.Go(func() error {
		ops, err := store.ListBlockOperations(ctx, 1)
		tracker.StoreOK(err == nil)
		if err == nil && len(ops) > 0 && ops[0].BlockIndex > lastIndex {
			best = ops[0].BlockIndex
			tracker.NewBestBlock(best)
		}
		return nil
	})
	_ = g.Wait()
	return best
}
