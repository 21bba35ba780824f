// Command simulate runs one aggregation session locally and prints its round
// reports as JSON.
//
// # Usage
//
//	go run ./cmd/simulate --config=session.yaml
//	go run ./cmd/simulate --config=session.yaml --rounds=24 --seed=other
//	go run ./cmd/simulate --config=session.yaml --drop-reports=2,5
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/flashbots/maskagg/cmd/common"
	"github.com/flashbots/maskagg/protocol"
	"github.com/flashbots/maskagg/report"
	"github.com/flashbots/maskagg/session"
	"github.com/flashbots/maskagg/sim"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a YAML or JSON session config (required)")
		seed        = flag.String("seed", "", "Override the session seed")
		rounds      = flag.Int("rounds", 0, "Number of rounds to run, cycling through the configured ones (0 runs each once)")
		dropReports = flag.String("drop-reports", "", "Comma-separated member ids whose reports the network drops")
		logFormat   = flag.String("log-format", "text", "Log format: text or json")
		logLevel    = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	if err := run(*configPath, *seed, *rounds, *dropReports, *logFormat, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, seed string, rounds int, dropReports, logFormat, logLevel string) error {
	log, err := common.NewLogger(logFormat, logLevel)
	if err != nil {
		return err
	}

	if configPath == "" {
		return fmt.Errorf("--config is required")
	}
	cfg, err := common.LoadSessionConfig(configPath)
	if err != nil {
		return err
	}
	if seed != "" {
		cfg.Seed = seed
	}

	opts := []session.Option{
		session.WithLogger(log),
		session.WithReporter(report.LogReporter{Logger: log}),
	}
	if dropReports != "" {
		dropped, err := parseMembers(dropReports)
		if err != nil {
			return err
		}
		opts = append(opts, session.WithDropFilter(sim.DropReportsFrom(dropped...)))
	}

	s, err := session.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var reports []*report.RoundReport
	if rounds <= 0 {
		reports, err = s.Run(ctx)
	} else {
		for range rounds {
			var r *report.RoundReport
			if r, err = s.RunRound(ctx); err != nil {
				break
			}
			reports = append(reports, r)
		}
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func parseMembers(list string) ([]protocol.MemberID, error) {
	var members []protocol.MemberID
	for _, field := range strings.Split(list, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return nil, fmt.Errorf("invalid member id %q", field)
		}
		members = append(members, protocol.MemberID(id))
	}
	return members, nil
}
