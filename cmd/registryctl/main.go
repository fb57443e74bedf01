package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/gren-lang/package-registry/cmd/registryctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "env",
			Usage: "path to a .env file",
			Value: ".env",
		}
	}

	app := &cli.Command{
		Name:  "registryctl",
		Usage: "operate the package registry import pipeline",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.MigrateAction,
			},
			{
				Name:  "sync",
				Usage: "start importing every released version of a package",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "name",
						Usage: "package name (author/project)",
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "git remote to import from; defaults to the GitHub repository of --name",
					},
				},
				Action: commands.SyncAction,
			},
			{
				Name:   "jobs",
				Usage:  "list import jobs",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.JobsAction,
			},
			{
				Name:  "search",
				Usage: "search indexed packages",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "query",
						Usage:    "search terms",
						Required: true,
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:   "reap",
				Usage:  "delete finished jobs older than JOB_RETENTION",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.ReapAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
