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

	"github.com/urfave/cli/v2"
)

var loadCommand = &cli.Command{
	Name:      "load",
	Usage:     "Load an unloaded dictionary",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("%w: expected a dictionary id", ErrFlagParse)
		}
		e, _, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		m, err := e.Load(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "loaded %s (%s)\n", m.Title, m.ID)
		return nil
	},
}

var unloadCommand = &cli.Command{
	Name:      "unload",
	Usage:     "Stop using a dictionary without deleting it",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("%w: expected a dictionary id", ErrFlagParse)
		}
		e, _, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Unload(c.Args().First())
	},
}

var removeCommand = &cli.Command{
	Name:      "remove",
	Usage:     "Delete a dictionary",
	ArgsUsage: "ID",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return fmt.Errorf("%w: expected a dictionary id", ErrFlagParse)
		}
		e, _, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Remove(c.Context, c.Args().First())
	},
}

var priorityCommand = &cli.Command{
	Name:      "priority",
	Usage:     "Move a dictionary to a position in the lookup order",
	ArgsUsage: "ID RANK",
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return fmt.Errorf("%w: expected a dictionary id and rank", ErrFlagParse)
		}
		rank, err := strconv.Atoi(c.Args().Get(1))
		if err != nil {
			return fmt.Errorf("%w: invalid rank: %w", ErrFlagParse, err)
		}
		e, _, err := openEngine(c)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.SetPriority(c.Context, c.Args().First(), rank)
	},
}
