// Command multi-txn runs the multi-partition transaction workload node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-glomers/internal/config"
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
	"github.com/joeycumines/go-glomers/internal/runtime"
	"github.com/joeycumines/go-glomers/internal/txn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rd := proto.NewReader(os.Stdin)
	wr := proto.NewWriter(os.Stdout)
	gen := msgid.New()

	base, err := node.Bootstrap(rd, wr, gen, nil)
	if err != nil {
		return err
	}
	logger := obslog.NewStderr(cfg.LogLevel, base.ID)
	base.Logger = logger

	loop := runtime.New(logger)
	n := txn.New(base, true)

	errCh := make(chan error, 1)
	go runtime.RunReader(ctx, rd, loop, cancel, logger, errCh, func(env proto.Envelope) {
		if err := n.Handle(env); err != nil {
			logger.Err().Err(err).Log("multi-txn: handling message failed")
		}
	})

	runErr := loop.Run(ctx)
	select {
	case err := <-errCh:
		return err
	default:
		return runErr
	}
}
