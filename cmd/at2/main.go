// Copyright (c) 2024 The AT2 network developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/at2net/at2/at2"
	"github.com/at2net/at2/genesis"
	"github.com/at2net/at2/ledger"
	"github.com/at2net/at2/log"
	"github.com/at2net/at2/lvldb"
	"github.com/at2net/at2/metrics"
	"github.com/at2net/at2/replica"
	"github.com/at2net/at2/transfer"
)

var (
	version   string
	gitCommit string
)

var logger = log.WithContext("pkg", "main")

func fullVersion() string {
	if version == "" {
		return "dev"
	}
	return fmt.Sprintf("%s-%s", version, gitCommit)
}

func main() {
	app := cli.App{
		Version: fullVersion(),
		Name:    "at2",
		Usage:   "transfer ledger tooling of the AT2 network",
		Flags: []cli.Flag{
			verbosityFlag,
			jsonLogsFlag,
			enableMetricsFlag,
			metricsAddrFlag,
		},
		Commands: []cli.Command{
			{
				Name:   "genesis",
				Usage:  "create a genesis section and seed its event log",
				Flags:  []cli.Flag{dataDirFlag, eldersFlag, thresholdFlag},
				Action: genesisAction,
			},
			{
				Name:   "replay",
				Usage:  "rebuild the ledger from the persisted event log and print its state",
				Flags:  []cli.Flag{dataDirFlag, curveFlag},
				Action: replayAction,
			},
			{
				Name:   "events",
				Usage:  "dump the persisted replica event log",
				Flags:  []cli.Flag{dataDirFlag},
				Action: eventsAction,
			},
			{
				Name:   "solo",
				Usage:  "run an in-process section and a few demo transfers",
				Flags:  []cli.Flag{eldersFlag, thresholdFlag, curveFlag},
				Action: soloAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".at2")
	}
	return ""
}

func initLogger(ctx *cli.Context) {
	lvl := log.FromLegacyLevel(ctx.GlobalInt(verbosityFlag.Name))
	switch {
	case ctx.GlobalBool(jsonLogsFlag.Name):
		log.SetDefault(log.NewJSONLogger(lvl))
	case isatty.IsTerminal(os.Stderr.Fd()):
		log.SetDefault(log.NewTerminalLogger(lvl))
	default:
		log.SetDefault(log.NewJSONLogger(lvl))
	}
}

func initMetrics(ctx *cli.Context) {
	if !ctx.GlobalBool(enableMetricsFlag.Name) {
		return
	}
	metrics.InitializePrometheusMetrics()
	addr := ctx.GlobalString(metricsAddrFlag.Name)
	go func() {
		if err := http.ListenAndServe(addr, metrics.HTTPHandler()); err != nil {
			logger.Error("metrics service stopped", "err", err)
		}
	}()
	logger.Info("metrics service started", "addr", addr)
}

func openStore(ctx *cli.Context) (*lvldb.LevelDB, error) {
	dir := ctx.String(dataDirFlag.Name)
	if dir == "" {
		return nil, fmt.Errorf("data directory not set")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return lvldb.New(filepath.Join(dir, "ledger.db"), lvldb.Options{})
}

func loadCurve(ctx *cli.Context) (ledger.CostCurve, error) {
	path := ctx.String(curveFlag.Name)
	if path == "" {
		return ledger.DefaultCurve(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ledger.LoadCurve(f)
}

func genesisAction(ctx *cli.Context) error {
	initLogger(ctx)
	initMetrics(ctx)

	n := ctx.Int(eldersFlag.Name)
	threshold := ctx.Int(thresholdFlag.Name)
	set, proof, err := genesis.Bootstrap(threshold, n)
	if err != nil {
		return err
	}

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := replica.OpenEventStore(db)
	if err != nil {
		return err
	}
	if store.Len() > 0 {
		return fmt.Errorf("event log already holds %d events", store.Len())
	}
	if err := store.Append(transfer.NewPropagatedEvent(proof)); err != nil {
		return err
	}

	fmt.Printf("section key:    %v\n", set.PublicKeySet().PublicKey())
	fmt.Printf("genesis credit: %v\n", proof.Credit.ID)
	fmt.Printf("supply:         %v\n", proof.Credit.Amount)
	return nil
}

func replayAction(ctx *cli.Context) error {
	initLogger(ctx)
	initMetrics(ctx)

	curve, err := loadCurve(ctx)
	if err != nil {
		return err
	}
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := replica.OpenEventStore(db)
	if err != nil {
		return err
	}
	events, err := store.All()
	if err != nil {
		return err
	}

	l := ledger.New(curve)
	if err := replica.Rebuild(l, at2.RootPrefix(), events); err != nil {
		return err
	}

	fmt.Printf("events:     %d\n", len(events))
	fmt.Printf("state hash: %v\n", l.StateHash())
	for _, wallet := range l.Wallets() {
		balance, err := l.Balance(wallet)
		if err != nil {
			return err
		}
		fmt.Printf("  %v  %v\n", wallet.AbbrevString(), balance)
	}
	return nil
}

func eventsAction(ctx *cli.Context) error {
	initLogger(ctx)

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := replica.OpenEventStore(db)
	if err != nil {
		return err
	}
	events, err := store.All()
	if err != nil {
		return err
	}
	for i, ev := range events {
		fmt.Printf("%8d  %v\n", i, ev)
	}
	digest, err := transfer.HashEvents(events)
	if err != nil {
		return err
	}
	fmt.Printf("log digest: %v\n", digest)
	return nil
}
