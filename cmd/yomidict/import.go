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

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/ianlewis/go-yomidict"
)

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "Import dictionary archives",
	ArgsUsage: "ARCHIVE...",
	Action: func(c *cli.Context) error {
		if c.NArg() == 0 {
			return fmt.Errorf("%w: no archive given", ErrFlagParse)
		}
		e, _, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		var errs []error
		for _, path := range c.Args().Slice() {
			res, err := e.Import(c.Context, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			printImport(c, path, res)
		}
		return errors.Join(errs...)
	},
}

func printImport(c *cli.Context, path string, res *yomidict.ImportResult) {
	w := c.App.Writer
	if res.AlreadyImported {
		fmt.Fprintf(w, "%s: %s already imported (%s)\n", path, res.Manifest.Title, res.ID)
		return
	}
	fmt.Fprintf(w, "%s: imported %s (%s): %s terms, %s keys\n",
		path, res.Manifest.Title, res.ID, humanize.Comma(int64(res.Terms)), humanize.Comma(int64(res.Keys)))
	if res.Meta > 0 {
		fmt.Fprintf(w, "  %s frequency and pitch rows\n", humanize.Comma(int64(res.Meta)))
	}
	if res.Skipped > 0 {
		fmt.Fprintf(w, "  skipped %s rows\n", humanize.Comma(int64(res.Skipped)))
	}
	for _, warning := range res.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", warning)
	}
}
