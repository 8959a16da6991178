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

	"github.com/dustin/go-humanize"
	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"
)

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "List installed dictionaries",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "loaded",
			Usage: "only list loaded dictionaries",
		},
	},
	Action: func(c *cli.Context) error {
		e, _, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		infos, err := e.Installed(c.Context)
		if err != nil {
			return fmt.Errorf("%w: listing dictionaries: %w", ErrYomidict, err)
		}

		tbl := table.New("Priority", "ID", "Title", "Revision", "Loaded", "Terms", "Meta", "Size", "Imported")
		tbl.WithWriter(c.App.Writer)
		for _, info := range infos {
			if c.Bool("loaded") && !info.Loaded {
				continue
			}
			size, err := e.DiskUsage(c.Context, info.Manifest.ID)
			if err != nil {
				return fmt.Errorf("%w: sizing %s: %w", ErrYomidict, info.Manifest.ID, err)
			}
			tbl.AddRow(
				info.Priority,
				info.Manifest.ID,
				info.Manifest.Title,
				info.Manifest.Revision,
				strconv.FormatBool(info.Loaded),
				humanize.Comma(int64(info.RecordCount)),
				humanize.Comma(int64(info.MetaCount)),
				humanize.Bytes(uint64(size)),
				humanize.Time(info.ImportedAt),
			)
		}
		tbl.Print()
		return nil
	},
}
