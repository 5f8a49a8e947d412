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

	cli "gopkg.in/urfave/cli.v1"

	"github.com/kalepool/kalepool/kale"
	"github.com/kalepool/kalepool/log"
)

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
