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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-yomidict"
	"github.com/ianlewis/go-yomidict/internal/render"
)

var lookupCommand = &cli.Command{
	Name:      "lookup",
	Usage:     "Look up a term in the loaded dictionaries",
	ArgsUsage: "TERM",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "readings",
			Usage:   "also match readings",
			Aliases: []string{"r"},
		},
		&cli.IntFlag{
			Name:  "max",
			Usage: "show at most `N` entries per dictionary",
			Value: -1,
		},
		&cli.IntFlag{
			Name:  "timeout-ms",
			Usage: "give up after `MS` milliseconds",
			Value: -1,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("%w: expected one term", ErrFlagParse)
		}
		e, cfg, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		opts := &yomidict.LookupOptions{
			MatchReadings:           cfg.Lookup.MatchReadings || c.Bool("readings"),
			MaxResultsPerDictionary: cfg.Lookup.MaxResults,
			Timeout:                 cfg.Lookup.Timeout,
		}
		if n := c.Int("max"); n >= 0 {
			opts.MaxResultsPerDictionary = n
		}
		if ms := c.Int("timeout-ms"); ms >= 0 {
			opts.Timeout = time.Duration(ms) * time.Millisecond
		}

		res, err := e.Lookup(c.Context, c.Args().First(), opts)
		if res != nil {
			if perr := printResult(c, res); perr != nil {
				return perr
			}
		}
		return err
	},
}

func printResult(c *cli.Context, res *yomidict.Result) error {
	w := c.App.Writer
	title := ""
	for _, entry := range res.Entries {
		if entry.DictionaryTitle != title {
			if title != "" {
				fmt.Fprintln(w)
			}
			title = entry.DictionaryTitle
			fmt.Fprintln(w, title)
			fmt.Fprintln(w)
		}
		if err := render.Record(w, entry.Record); err != nil {
			return fmt.Errorf("%w: printing entry: %w", ErrYomidict, err)
		}
		for _, df := range entry.Frequencies {
			values := make([]string, len(df.Frequencies))
			for i, f := range df.Frequencies {
				values[i] = f.Display
			}
			fmt.Fprintf(w, "   freq %s: %s\n", df.DictionaryTitle, strings.Join(values, ", "))
		}
		for _, dp := range entry.Pitches {
			values := make([]string, len(dp.Pitches))
			for i, p := range dp.Pitches {
				values[i] = "[" + strconv.Itoa(p.Position) + "]"
			}
			fmt.Fprintf(w, "   pitch %s: %s\n", dp.DictionaryTitle, strings.Join(values, " "))
		}
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(errWriter(c), "warning: %v\n", warning)
	}
	return nil
}
