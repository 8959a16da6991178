// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-yomidict"
	"github.com/ianlewis/go-yomidict/blobstore"
	"github.com/ianlewis/go-yomidict/internal/config"
)

const (
	// ExitCodeSuccess is successful error code.
	ExitCodeSuccess int = iota

	// ExitCodeFlagParseError is the exit code for a flag parsing error.
	ExitCodeFlagParseError

	// ExitCodeUnknownError is the exit code for an unknown error.
	ExitCodeUnknownError
)

// ErrYomidict is a parent error for all command errors.
var ErrYomidict = errors.New("yomidict")

// ErrFlagParse is a flag parsing error.
var ErrFlagParse = fmt.Errorf("%w: parsing flags", ErrYomidict)

var copyrightNames = []string{
	"2025 Ian Lewis",
}

//nolint:gochecknoinits // init needed needed for global variable.
func init() {
	// Set the HelpFlag to a random name so that it isn't used. `cli` handles
	// the flag with the root command such that it takes a command name argument
	// but we handle help ourselves.
	//
	// This flag is hidden by the help output.
	// See: github.com/urfave/cli/issues/1809
	cli.HelpFlag = &cli.BoolFlag{
		// NOTE: Use a random name no one would guess.
		Name:               "d41d8cd98f00b204e980",
		DisableDefaultText: true,
	}
}

// check checks the error and panics if not nil.
func check(err error) {
	if err != nil {
		panic(err)
	}
}

// loadConfig loads the configuration named by the global flags. Flags
// override the file and the environment.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("database"); db != "" {
		cfg.Database = db
	}
	if level := c.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// openEngine opens the engine on the configured store.
func openEngine(c *cli.Context) (*yomidict.Engine, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	codec, err := blobstore.ParseCodec(cfg.Import.Codec)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	e, err := yomidict.Open(cfg.Database,
		yomidict.WithCodec(codec),
		yomidict.WithBusyTimeout(cfg.Import.BusyTimeout),
		yomidict.WithCacheSize(cfg.Lookup.CacheSize),
		yomidict.WithImportWorkers(cfg.Import.Workers),
		yomidict.WithMaxConcurrentImports(cfg.Import.MaxConcurrent),
		yomidict.WithLogger(cfg.Logging.NewLogger(errWriter(c))),
	)
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

func newYomidictApp() *cli.App {
	return &cli.App{
		Name:  filepath.Base(os.Args[0]),
		Usage: "Import and search yomitan dictionaries.",
		Description: strings.Join([]string{
			"yomitan dictionary utility written in Go.",
			"http://github.com/ianlewis/go-yomidict",
		}, "\n"),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "read configuration from `FILE`",
				Aliases: []string{"c"},
				EnvVars: []string{config.EnvPrefix + "CONFIG"},
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "store dictionaries in `FILE`",
				Aliases: []string{"d"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log at `LEVEL` (debug, info, warn, error)",
			},

			// Special flags are shown at the end.
			&cli.BoolFlag{
				Name:               "help",
				Usage:              "print this help text and exit",
				Aliases:            []string{"h"},
				DisableDefaultText: true,
			},
			&cli.BoolFlag{
				Name:               "version",
				Usage:              "print version information and exit",
				Aliases:            []string{"V"},
				DisableDefaultText: true,
			},
		},
		Copyright:       strings.Join(copyrightNames, "\n"),
		HideHelp:        true,
		HideHelpCommand: true,
		OnUsageError: func(_ *cli.Context, err error, _ bool) error {
			return fmt.Errorf("%w: %w", ErrFlagParse, err)
		},
		Action: func(c *cli.Context) error {
			if c.Bool("version") {
				return printVersion(c)
			}

			check(cli.ShowAppHelp(c))
			return nil
		},
		Commands: []*cli.Command{
			importCommand,
			listCommand,
			lookupCommand,
			loadCommand,
			unloadCommand,
			removeCommand,
			priorityCommand,
			watchCommand,
		},
	}
}
