package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/storage"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/ntt-ledger/config"
	"github.com/nspcc-dev/ntt-ledger/dump"
	"github.com/nspcc-dev/ntt-ledger/ledger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	dirFlag = &cli.StringFlag{
		Name:  "dir",
		Usage: "Directory of the dump files",
		Value: "testdata",
	}
	labelFlag = &cli.StringFlag{
		Name:     "label",
		Usage:    "Label of the dump (e.g. node name)",
		Required: true,
	}
	accountFlag = &cli.StringFlag{
		Name:     "account",
		Usage:    "Account address",
		Required: true,
	}
	scopeFlag = &cli.StringFlag{
		Name:  "scope",
		Usage: "Scope address, all scopes if omitted",
	}
	classFlag = &cli.StringFlag{
		Name:  "class",
		Usage: "Value class: any, primary or secondary",
		Value: "any",
	}
)

var dumpCommand = &cli.Command{
	Name:  "dump",
	Usage: "Dump the ledger store into files",
	Flags: []cli.Flag{dirFlag, labelFlag},
	Action: func(c *cli.Context) error {
		env, err := openEnv(c)
		if err != nil {
			return err
		}
		defer env.close()

		dir := c.String(dirFlag.Name)
		if err = os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create dump dir: %w", err)
		}

		id := dump.ID{Label: c.String(labelFlag.Name), Seq: uint64(time.Now().Unix())}

		d, err := dump.NewCreator(dir, id)
		if err != nil {
			return fmt.Errorf("init local dumper: %w", err)
		}
		defer d.Close()

		if err = d.DumpLedger(env.ledger); err != nil {
			return fmt.Errorf("dump ledger: %w", err)
		}
		if err = d.Flush(); err != nil {
			return fmt.Errorf("flush dump: %w", err)
		}

		env.log.Info("ledger dumped", zap.String("dir", dir), zap.Stringer("id", id))
		return nil
	},
}

var restoreCommand = &cli.Command{
	Name:  "restore",
	Usage: "Restore the latest dump with the label into the empty store",
	Flags: []cli.Flag{dirFlag, labelFlag},
	Action: func(c *cli.Context) error {
		cfg, log, err := loadConfig(c)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		var (
			label  = c.String(labelFlag.Name)
			found  bool
			latest dump.ID
		)
		err = dump.IterateDumps(c.String(dirFlag.Name), func(id dump.ID, _ *dump.Reader) {
			if id.Label == label && (!found || id.Seq > latest.Seq) {
				latest, found = id, true
			}
		})
		if err != nil {
			return fmt.Errorf("read dumps: %w", err)
		}
		if !found {
			return fmt.Errorf("no dumps labeled '%s'", label)
		}

		s, err := storage.NewStore(cfg.Storage.DBConfiguration())
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = s.Close() }()

		restoreErr := errors.New("dump disappeared")
		err = dump.IterateDumps(c.String(dirFlag.Name), func(id dump.ID, r *dump.Reader) {
			if id == latest {
				_, restoreErr = r.Restore(s)
			}
		})
		if err == nil {
			err = restoreErr
		}
		if err != nil {
			return fmt.Errorf("restore %s: %w", latest, err)
		}

		log.Info("ledger restored", zap.Stringer("id", latest), zap.String("store", cfg.Storage.Type))
		return nil
	},
}

var checkCommand = &cli.Command{
	Name:  "check",
	Usage: "Check consistency of the ledger store",
	Action: func(c *cli.Context) error {
		env, err := openEnv(c)
		if err != nil {
			return err
		}
		defer env.close()

		if err = env.ledger.Begin().CheckInvariants(); err != nil {
			return err
		}

		fmt.Fprintln(c.App.Writer, "ledger is consistent")
		return nil
	},
}

var balanceCommand = &cli.Command{
	Name:  "balance",
	Usage: "Print balance of the account",
	Flags: []cli.Flag{accountFlag, scopeFlag, classFlag, &cli.StringFlag{
		Name:  "counterparty",
		Usage: "Print escrow to the counterparty instead, all counterparties if 'any'",
	}},
	Action: func(c *cli.Context) error {
		acc, err := address.StringToUint160(c.String(accountFlag.Name))
		if err != nil {
			return fmt.Errorf("invalid account: %w", err)
		}
		scope, err := parseScope(c.String(scopeFlag.Name))
		if err != nil {
			return err
		}
		cl, err := ledger.ParseClass(c.String(classFlag.Name))
		if err != nil {
			return err
		}

		env, err := openEnv(c)
		if err != nil {
			return err
		}
		defer env.close()

		tx := env.ledger.Begin()

		if party := c.String("counterparty"); party != "" {
			h := ledger.None
			if party != "any" {
				if h, err = address.StringToUint160(party); err != nil {
					return fmt.Errorf("invalid counterparty: %w", err)
				}
			}
			v, err := tx.EscrowBalanceOf(acc, scope, h, cl)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "escrow: %d\n", v)
			return nil
		}

		avail, err := tx.BalanceOf(acc, scope, cl)
		if err != nil {
			return err
		}
		total, err := tx.TotalBalanceOf(acc, scope, cl)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "available: %d\ntotal: %d\n", avail, total)
		return nil
	},
}

var supplyCommand = &cli.Command{
	Name:  "supply",
	Usage: "Print total supply of the scope or of all scopes",
	Flags: []cli.Flag{scopeFlag, classFlag},
	Action: func(c *cli.Context) error {
		env, err := openEnv(c)
		if err != nil {
			return err
		}
		defer env.close()

		tx := env.ledger.Begin()

		if !c.IsSet(scopeFlag.Name) {
			return tx.Supplies(func(s ledger.Supply) bool {
				if s.Scope.Equals(ledger.None) {
					return true
				}
				fmt.Fprintf(c.App.Writer, "%s\t%s\t%d\n", address.Uint160ToString(s.Scope), s.Class, s.Amount)
				return true
			})
		}

		scope, err := parseScope(c.String(scopeFlag.Name))
		if err != nil {
			return err
		}
		cl, err := ledger.ParseClass(c.String(classFlag.Name))
		if err != nil {
			return err
		}

		v, err := tx.TotalSupply(scope, cl)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, v)
		return nil
	},
}

func parseScope(s string) (util.Uint160, error) {
	if s == "" {
		return ledger.None, nil
	}
	h, err := address.StringToUint160(s)
	if err != nil {
		return util.Uint160{}, fmt.Errorf("invalid scope: %w", err)
	}
	return h, nil
}

type ledgerEnv struct {
	log    *zap.Logger
	store  storage.Store
	ledger *ledger.Ledger
}

func (x *ledgerEnv) close() {
	if err := x.store.Close(); err != nil {
		x.log.Warn("failed to close store", zap.Error(err))
	}
	_ = x.log.Sync()
}

func loadConfig(c *cli.Context) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return config.Config{}, nil, err
	}

	log, err := cfg.Logger.Build()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("build logger: %w", err)
	}
	return cfg, log, nil
}

func openEnv(c *cli.Context) (*ledgerEnv, error) {
	cfg, log, err := loadConfig(c)
	if err != nil {
		return nil, err
	}

	s, err := storage.NewStore(cfg.Storage.DBConfiguration())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	l, err := ledger.Open(s)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	return &ledgerEnv{log: log, store: s, ledger: l}, nil
}
