// bloop-receiver is a local stand-in for the bloop ingestion service. It
// verifies signed error and trace batches and stores them in sqlite so SDK
// output can be inspected during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kon-rad/bloop-go/internal/app"
	"github.com/kon-rad/bloop-go/internal/config"
	"github.com/kon-rad/bloop-go/internal/logging"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("bloop-receiver", pflag.ContinueOnError)
	cfg.BindFlags(flagSet)
	showVersion := flagSet.Bool("version", false, "print version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if *showVersion {
		fmt.Println("bloop-receiver", version)
		return nil
	}

	logger, err := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	return app.New(cfg, logger, version).Run(ctx, nil)
}

func printHelp(flagSet *pflag.FlagSet) {
	config.WriteHelp(os.Stdout, version)
	fmt.Fprint(os.Stdout, flagSet.FlagUsages())
}
