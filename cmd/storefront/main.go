// Command storefront browses the bookstore through the query cache.
//
//	storefront books [-q text] [-author name] [-pages n]
//	storefront book <id>
//	storefront fav [-fail] <id>
//	storefront cart
//	storefront add <id> [qty]
//	storefront clear [-fail]
//	storefront discount <code>
//	storefront inventory [-q text] [-author name] [-pages n]
//	storefront repl
//
// repl reads commands from stdin against one cache, so repeated reads are
// served from memory until they go stale.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unkn0wn-root/querycache/internal/app"
	"github.com/unkn0wn-root/querycache/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newCLI(a, cfg, os.Stdout)
	if len(args) == 0 {
		c.usage()
		return nil
	}
	if args[0] == "repl" {
		return c.repl(ctx, os.Stdin)
	}
	return c.exec(ctx, args)
}
