// Command broadcast runs the gossip broadcast workload node.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/go-glomers/internal/broadcast"
	"github.com/joeycumines/go-glomers/internal/config"
	"github.com/joeycumines/go-glomers/internal/msgid"
	"github.com/joeycumines/go-glomers/internal/node"
	"github.com/joeycumines/go-glomers/internal/obslog"
	"github.com/joeycumines/go-glomers/internal/proto"
	"github.com/joeycumines/go-glomers/internal/runtime"
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
	n := broadcast.New(base)

	errCh := make(chan error, 1)
	go runtime.RunReader(ctx, rd, loop, cancel, logger, errCh, func(env proto.Envelope) {
		if err := n.Handle(env); err != nil {
			logger.Err().Err(err).Log("broadcast: handling message failed")
		}
	})
	go runtime.RunTicker(ctx, loop, cfg.GossipInterval, func() {
		if err := n.Gossip(); err != nil {
			logger.Err().Err(err).Log("broadcast: gossip tick failed")
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
