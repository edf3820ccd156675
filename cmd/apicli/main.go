// Package main is the entry point for the apicli runtime binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/cmdtree/internal/apicli"
	"github.com/mark3labs/cmdtree/internal/cmdtree"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := apicli.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	tree, err := cmdtree.Load(cfg.CommandTree)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\nHint: set %sCOMMAND_TREE or run `cmdtree generate` first.\n", err, apicli.EnvPrefix)
		return 1
	}
	if err := tree.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := apicli.Execute(ctx, tree, cfg, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
