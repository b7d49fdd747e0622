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
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/mendersoftware/lmdbenv/lmdb"
)

var out io.Writer = os.Stdout

// withEnv opens the configured environment, runs fn, and closes it again.
func (runOptions *runOptionsType) withEnv(readonly bool,
	fn func(env *lmdb.Env) error) error {
	config, err := runOptions.loadConfig()
	if err != nil {
		return err
	}
	if readonly {
		config.ReadOnly = true
	}
	env, err := config.OpenEnv()
	if err != nil {
		return err
	}
	defer func() {
		if err := env.Close(); err != nil {
			log.Errorf("failed to close environment: %v", err)
		}
	}()
	return fn(env)
}

// openDB resolves the --db flag to a database handle inside txn.
func openDB(ctx *cli.Context, txn *lmdb.Txn, flags lmdb.DBFlags) (lmdb.DBI, error) {
	if name := ctx.String("db"); name != "" {
		return txn.OpenDBI(name, flags)
	}
	return txn.OpenRoot(flags)
}

func noExtraArgs(ctx *cli.Context) error {
	if ctx.Args().Len() > 0 {
		return errors.Errorf(errMsgAmbiguousArgumentsGivenF,
			ctx.Args().First())
	}
	return nil
}

func (runOptions *runOptionsType) statHandler(ctx *cli.Context) error {
	if err := noExtraArgs(ctx); err != nil {
		return err
	}
	return runOptions.withEnv(true, func(env *lmdb.Env) error {
		stat, err := env.Stat()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "page size:      %d\n", stat.PSize)
		fmt.Fprintf(out, "tree depth:     %d\n", stat.Depth)
		fmt.Fprintf(out, "branch pages:   %d\n", stat.BranchPages)
		fmt.Fprintf(out, "leaf pages:     %d\n", stat.LeafPages)
		fmt.Fprintf(out, "overflow pages: %d\n", stat.OverflowPages)
		fmt.Fprintf(out, "entries:        %d\n", stat.Entries)
		return nil
	})
}

func (runOptions *runOptionsType) infoHandler(ctx *cli.Context) error {
	if err := noExtraArgs(ctx); err != nil {
		return err
	}
	return runOptions.withEnv(true, func(env *lmdb.Env) error {
		info, err := env.Info()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "map size:     %d\n", info.MapSize)
		fmt.Fprintf(out, "last page:    %d\n", info.LastPNO)
		fmt.Fprintf(out, "last txn id:  %d\n", info.LastTxnID)
		fmt.Fprintf(out, "max readers:  %d\n", info.MaxReaders)
		fmt.Fprintf(out, "used readers: %d\n", info.NumReaders)
		fmt.Fprintf(out, "max key size: %d\n", env.MaxKeySize())
		return nil
	})
}

func (runOptions *runOptionsType) copyHandler(ctx *cli.Context) error {
	dest := ctx.Args().First()
	if dest == "" {
		return errors.New("copy requires a destination directory")
	}
	var flags lmdb.CopyFlags
	if ctx.Bool("compact") {
		flags = flags.With(lmdb.CopyCompact)
	}
	return runOptions.withEnv(true, func(env *lmdb.Env) error {
		if err := env.Copy(dest, flags); err != nil {
			return err
		}
		log.Infof("environment copied to %s", dest)
		return nil
	})
}

func (runOptions *runOptionsType) syncHandler(ctx *cli.Context) error {
	if err := noExtraArgs(ctx); err != nil {
		return err
	}
	return runOptions.withEnv(false, func(env *lmdb.Env) error {
		return env.Sync(ctx.Bool("force"))
	})
}

func (runOptions *runOptionsType) readerCheckHandler(ctx *cli.Context) error {
	if err := noExtraArgs(ctx); err != nil {
		return err
	}
	return runOptions.withEnv(false, func(env *lmdb.Env) error {
		cleared, err := env.ReaderCheck()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "cleared %d stale reader slots\n", cleared)
		return nil
	})
}

// dumpRange translates the --from/--to/--prefix/--reverse flags into a
// KeyRange.
func dumpRange(ctx *cli.Context) (lmdb.KeyRange[[]byte], error) {
	var zero lmdb.KeyRange[[]byte]
	prefix := ctx.String("prefix")
	from := ctx.String("from")
	to := ctx.String("to")
	reverse := ctx.Bool("reverse")

	if prefix != "" {
		if from != "" || to != "" {
			return zero, errors.New(
				"--prefix cannot be combined with --from/--to")
		}
		if reverse {
			return lmdb.RangePrefixBackward([]byte(prefix)), nil
		}
		return lmdb.RangePrefix([]byte(prefix)), nil
	}

	switch {
	case from != "" && to != "":
		if reverse {
			return lmdb.RangeClosedBackward([]byte(from), []byte(to)), nil
		}
		return lmdb.RangeClosed([]byte(from), []byte(to)), nil
	case from != "":
		if reverse {
			return lmdb.RangeAtLeastBackward([]byte(from)), nil
		}
		return lmdb.RangeAtLeast([]byte(from)), nil
	case to != "":
		if reverse {
			return lmdb.RangeAtMostBackward([]byte(to)), nil
		}
		return lmdb.RangeAtMost([]byte(to)), nil
	case reverse:
		return lmdb.RangeAllBackward[[]byte](), nil
	}
	return lmdb.RangeAll[[]byte](), nil
}

func (runOptions *runOptionsType) dumpHandler(ctx *cli.Context) error {
	if err := noExtraArgs(ctx); err != nil {
		return err
	}
	rng, err := dumpRange(ctx)
	if err != nil {
		return err
	}
	return runOptions.withEnv(true, func(env *lmdb.Env) error {
		return env.View(func(txn *lmdb.Txn) error {
			dbi, err := openDB(ctx, txn, 0)
			if err != nil {
				return err
			}
			it, err := lmdb.Iterate(txn, dbi, rng)
			if err != nil {
				return err
			}
			defer it.Close()
			return it.ForEach(func(key, val []byte) error {
				_, err := fmt.Fprintf(out, "%s=%s\n", key, val)
				return err
			})
		})
	})
}

func (runOptions *runOptionsType) getHandler(ctx *cli.Context) error {
	key := ctx.Args().First()
	if key == "" {
		return errors.New("get requires a key")
	}
	return runOptions.withEnv(true, func(env *lmdb.Env) error {
		return env.View(func(txn *lmdb.Txn) error {
			dbi, err := openDB(ctx, txn, 0)
			if err != nil {
				return err
			}
			val, err := txn.Get(dbi, []byte(key))
			if lmdb.IsNotFound(err) {
				return errors.Errorf("key %q not found", key)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "%s\n", val)
			return err
		})
	})
}

func (runOptions *runOptionsType) putHandler(ctx *cli.Context) error {
	if ctx.Args().Len() != 2 {
		return errors.New("put requires a key and a value")
	}
	key, val := ctx.Args().Get(0), ctx.Args().Get(1)
	return runOptions.withEnv(false, func(env *lmdb.Env) error {
		return env.Update(func(txn *lmdb.Txn) error {
			dbi, err := openDB(ctx, txn, lmdb.Create)
			if err != nil {
				return err
			}
			return txn.Put(dbi, []byte(key), []byte(val), 0)
		})
	})
}

func (runOptions *runOptionsType) delHandler(ctx *cli.Context) error {
	key := ctx.Args().First()
	if key == "" {
		return errors.New("del requires a key")
	}
	return runOptions.withEnv(false, func(env *lmdb.Env) error {
		return env.Update(func(txn *lmdb.Txn) error {
			dbi, err := openDB(ctx, txn, 0)
			if err != nil {
				return err
			}
			err = txn.Del(dbi, []byte(key), nil)
			if lmdb.IsNotFound(err) {
				return errors.Errorf("key %q not found", key)
			}
			return err
		})
	})
}
