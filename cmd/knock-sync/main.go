package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	goversion "github.com/caarlos0/go-version"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"rentpure.com/knock-sync/knock"
)

var (
	version   = "0.1.0"
	commit    = ""
	treeState = ""
	date      = ""
	builtBy   = ""
	debug     = flag.Bool("debug", false, "Enable debug logging")
	envFile   = flag.String("env-file", ".env", "Environment file loaded before reading configuration. Variables already set win.")
	dryRun    = flag.Bool("dry-run", false, "Fetch, query and log, print the payload, but do not submit it to Knock")
	showVer   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	os.Exit(run(context.Background(), os.Stdout))
}

// run returns the process exit code so deferred cleanup runs before exiting
func run(ctx context.Context, stdout io.Writer) int {
	if *showVer {
		_, _ = fmt.Fprintln(stdout, buildVersion(version, commit, date, builtBy, treeState).String())
		return 0
	}

	logger, err := knock.NewConsoleLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err = loadEnvFile(*envFile); err != nil {
		logger.Error("Failed to load environment file", zap.String("file", *envFile), zap.Error(err))
		return 1
	}

	config, err := knock.ConfigFromEnvironment()
	if err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return 1
	}

	syncStat, err := knock.Run(ctx, config, knock.Options{DryRun: *dryRun}, logger)
	if err != nil {
		logger.Error("Knock sync failed", zap.Error(err))
		return 1
	}
	knock.PrintStatistics(stdout, syncStat)
	return 0
}

// loadEnvFile ignores a missing file; godotenv.Load never overrides the process environment
func loadEnvFile(path string) error {
	if len(path) == 0 {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func buildVersion(version, commit, date, builtBy, treeState string) goversion.Info {
	return goversion.GetVersionInfo(
		goversion.WithAppDetails("knock-sync", "Sync source users into the Knock user directory", "https://knock.app"),
		func(i *goversion.Info) {
			if commit != "" {
				i.GitCommit = commit
			}
			if version != "" {
				i.GitVersion = version
			}
			if treeState != "" {
				i.GitTreeState = treeState
			}
			if date != "" {
				i.BuildDate = date
			}
			if builtBy != "" {
				i.BuiltBy = builtBy
			}
		},
	)
}
