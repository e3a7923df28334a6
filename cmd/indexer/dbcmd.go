package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/cfchain/indexer/internal/store"
)

// dbCommand is a local/dev convenience absent from
// original_source/indexer/cli.py (which only ever health-checks a
// schema it never owns, per spec.md §1). It exists so `migrations/`
// has a way to run against a fresh local Postgres without reaching for
// the backend's own migration tooling.
var dbCommand = &cli.Command{
	Name:  "db",
	Usage: "local development database bring-up",
	Subcommands: []*cli.Command{
		{
			Name:  "migrate",
			Usage: "apply migrations/ to DB_URL",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "path", Value: "migrations"},
			},
			Action: dbMigrateAction,
		},
		{
			Name:   "check",
			Usage:  "verify the required tables exist",
			Action: dbCheckAction,
		},
	},
}

func dbMigrateAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	if err := store.Migrate(e.cfg.DBURL, c.String("path")); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func dbCheckAction(c *cli.Context) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	s, err := e.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.CheckTablesExist(c.Context); err != nil {
		return err
	}
	fmt.Println("all required tables exist")
	return nil
}
