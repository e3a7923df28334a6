// Command indexer is the single binary exposing every operational
// surface of the blockchain event indexer: the producer poll/backfill
// loop, the consumer worker fleet, and broker administration. The
// subcommand tree mirrors original_source/indexer/cli.py's
// producer/consumer/broker groups (the legacy top-level aliases that
// file carried for backward compatibility are dropped — this is a
// fresh binary, not a migration target).
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "indexer",
		Usage: "blockchain event indexer for the crowdfunding platform",
		Commands: []*cli.Command{
			producerCommand,
			consumerCommand,
			brokerCommand,
			dbCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		if err == errInterrupted {
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, "indexer:", err)
		os.Exit(1)
	}
}
