package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/ntt-ledger/config"
	"github.com/nspcc-dev/ntt-ledger/rpc/receiver"
	"github.com/nspcc-dev/ntt-ledger/settlement"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var pollCommand = &cli.Command{
	Name:      "poll",
	Usage:     "Print outcome of the remote application call",
	ArgsUsage: "<tx hash>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return errors.New("exactly one transaction hash is expected")
		}
		h, err := util.Uint256DecodeStringLE(c.Args().First())
		if err != nil {
			return fmt.Errorf("invalid transaction hash: %w", err)
		}

		cfg, log, err := loadConfig(c)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		b, err := newRemoteApplications(c.Context, cfg.RPC, log)
		if err != nil {
			return err
		}
		defer b.close()

		o, err := b.caller.Poll(c.Context, h)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "status: %s\n", o.Status)
		if len(o.Payload) > 0 {
			fmt.Fprintf(c.App.Writer, "payload: %s\n", o.Payload)
		}
		return nil
	},
}

// remoteApplications provides settlement.RemoteCaller over Neo RPC server.
type remoteApplications struct {
	rpc    *rpcclient.Client
	caller *receiver.Caller
}

var _ settlement.RemoteCaller = (*receiver.Caller)(nil)

// newRemoteApplications dials Neo RPC server and returns remoteApplications
// sending calls on behalf of the configured wallet account. Without wallet
// calls are signed by the newly generated account.
func newRemoteApplications(ctx context.Context, prm config.RPC, log *zap.Logger) (*remoteApplications, error) {
	if prm.Endpoint == "" {
		return nil, errors.New("missing Neo RPC endpoint")
	}

	acc, err := loadAccount(prm)
	if err != nil {
		return nil, err
	}

	c, err := rpcclient.New(ctx, prm.Endpoint, rpcclient.Options{
		DialTimeout:    prm.DialTimeout,
		RequestTimeout: prm.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("RPC client dial: %w", err)
	}

	if err = c.Init(); err != nil {
		c.Close()
		return nil, fmt.Errorf("RPC client init: %w", err)
	}

	act, err := actor.NewSimple(c, acc)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("init actor: %w", err)
	}

	return &remoteApplications{
		rpc:    c,
		caller: receiver.New(act, c, log),
	}, nil
}

func (x *remoteApplications) close() {
	x.rpc.Close()
}

func loadAccount(prm config.RPC) (*wallet.Account, error) {
	if prm.Wallet == "" {
		acc, err := wallet.NewAccount()
		if err != nil {
			return nil, fmt.Errorf("generate new Neo account: %w", err)
		}
		return acc, nil
	}

	w, err := wallet.NewWalletFromFile(prm.Wallet)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	h := w.GetChangeAddress()
	if prm.Account != "" {
		if h, err = address.StringToUint160(prm.Account); err != nil {
			return nil, fmt.Errorf("invalid account address: %w", err)
		}
	}

	acc := w.GetAccount(h)
	if acc == nil {
		return nil, fmt.Errorf("account %s is missing in the wallet", address.Uint160ToString(h))
	}
	if err = acc.Decrypt(prm.Password, w.Scrypt); err != nil {
		return nil, fmt.Errorf("decrypt account: %w", err)
	}
	return acc, nil
}
