package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/giantcranberry/Newsworthy-sub000/config"
	"github.com/giantcranberry/Newsworthy-sub000/internal/migrations"
	"github.com/giantcranberry/Newsworthy-sub000/internal/repository/postgres"
	"github.com/giantcranberry/Newsworthy-sub000/pkg/logger"
)

const usage = "usage: dbtool [up|down <steps>|version|force <version>]"

func main() {
	log := logger.New(logger.INFO)
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := postgres.NewConnection(ctx, cfg.Database, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer conn.Close()

	mg, err := migrations.New(conn.DB.DB, log)
	if err != nil {
		log.Fatalw("Failed to init migrations", "error", err)
	}
	defer func() { _ = mg.Close() }()

	if err := run(mg, os.Args[1:]); err != nil {
		log.Fatalw("dbtool failed", "error", err)
	}
}

func run(mg *migrations.Migrator, args []string) error {
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "up":
		return mg.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[1], err)
			}
			steps = n
		}
		return mg.Down(steps)
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("%s", usage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		return mg.Force(v)
	default:
		return fmt.Errorf("unknown command %q, %s", cmd, usage)
	}
}
