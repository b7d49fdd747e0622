// Copyright 2023 Northern.tech AS
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.
package cli

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mendersoftware/lmdbenv/conf"
	"github.com/mendersoftware/lmdbenv/lmdb"
)

const (
	appDescription = "" +
		"lmdbenv inspects and maintains LMDB database environments: " +
		"statistics, environment info, backup copies, reader-table " +
		"maintenance and raw key-value access.\n\n" +
		"Global flag remarks.\n" +
		"  - Supported log levels include: 'debug', 'info', " +
		"'warning', 'error', 'panic' and 'fatal'."
)

const (
	errMsgAmbiguousArgumentsGivenF = "Ambiguous arguments given - " +
		"unrecognized argument: %s"
)

type runOptionsType struct {
	config         string
	fallbackConfig string
	path           string
	logLevel       string
}

func ShowVersion() string {
	return fmt.Sprintf("%s\tlmdb: %s\truntime: %s",
		VersionString, lmdb.VersionString(), runtime.Version())
}

// VersionString is overridden at build time.
var VersionString = "unknown"

func (runOptions *runOptionsType) handleLogFlags(ctx *cli.Context) error {
	level, err := log.ParseLevel(runOptions.logLevel)
	if err != nil {
		return errors.Wrapf(err, "unknown log level %q", runOptions.logLevel)
	}
	log.SetLevel(level)
	return nil
}

// loadConfig merges the configuration files with the command line; an
// explicit --path always wins.
func (runOptions *runOptionsType) loadConfig() (*conf.LMDBConfig, error) {
	config, err := conf.LoadConfig(runOptions.config, runOptions.fallbackConfig)
	if err != nil {
		return nil, err
	}
	if runOptions.path != "" {
		config.Path = runOptions.path
	}
	return config, nil
}

func SetupCLI(args []string) error {
	runOptions := &runOptionsType{}

	app := &cli.App{
		Before:      runOptions.handleLogFlags,
		Description: appDescription,
		Name:        "lmdbenv",
		Usage:       "inspect and maintain LMDB environments.",
		Version:     ShowVersion(),
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "`PATH` to configuration file.",
			Destination: &runOptions.config,
		},
		&cli.StringFlag{
			Name:        "fallback-config",
			Aliases:     []string{"b"},
			Usage:       "`PATH` to fallback configuration file.",
			Destination: &runOptions.fallbackConfig,
		},
		&cli.StringFlag{
			Name:        "path",
			Aliases:     []string{"p"},
			Usage:       "`PATH` to the database environment.",
			Destination: &runOptions.path,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Aliases:     []string{"l"},
			Usage:       "Set logging `level`.",
			Value:       "warning",
			Destination: &runOptions.logLevel,
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:   "stat",
			Usage:  "Show environment and database statistics.",
			Action: runOptions.statHandler,
		},
		{
			Name:   "info",
			Usage:  "Show environment information.",
			Action: runOptions.infoHandler,
		},
		{
			Name:      "copy",
			Usage:     "Copy the environment to an empty directory.",
			ArgsUsage: "<DESTINATION>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "compact",
					Aliases: []string{"C"},
					Usage:   "Omit free pages and renumber while copying.",
				},
			},
			Action: runOptions.copyHandler,
		},
		{
			Name:  "sync",
			Usage: "Flush data buffers to disk.",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "force",
					Aliases: []string{"f"},
					Usage:   "Force a synchronous flush.",
				},
			},
			Action: runOptions.syncHandler,
		},
		{
			Name:   "reader-check",
			Usage:  "Clear stale entries from the reader lock table.",
			Action: runOptions.readerCheckHandler,
		},
		{
			Name:  "dump",
			Usage: "Dump keys and values, optionally within a range.",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "db",
					Usage: "Named database to dump (default: root).",
				},
				&cli.StringFlag{
					Name:  "from",
					Usage: "Start `KEY`, inclusive.",
				},
				&cli.StringFlag{
					Name:  "to",
					Usage: "Stop `KEY`, inclusive.",
				},
				&cli.StringFlag{
					Name:  "prefix",
					Usage: "Dump only keys starting with `PREFIX`.",
				},
				&cli.BoolFlag{
					Name:    "reverse",
					Aliases: []string{"r"},
					Usage:   "Iterate in descending key order.",
				},
			},
			Action: runOptions.dumpHandler,
		},
		{
			Name:      "get",
			Usage:     "Print the value stored for a key.",
			ArgsUsage: "<KEY>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "db"},
			},
			Action: runOptions.getHandler,
		},
		{
			Name:      "put",
			Usage:     "Store a value for a key.",
			ArgsUsage: "<KEY> <VALUE>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "db"},
			},
			Action: runOptions.putHandler,
		},
		{
			Name:      "del",
			Usage:     "Delete a key.",
			ArgsUsage: "<KEY>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "db"},
			},
			Action: runOptions.delHandler,
		},
	}
	cli.VersionPrinter = func(ctx *cli.Context) {
		fmt.Fprintln(ctx.App.Writer, ctx.App.Version)
	}

	return app.Run(args)
}
