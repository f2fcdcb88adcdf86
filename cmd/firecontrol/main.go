package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeusync/salvo/internal/injector"
)

func main() {
	configPath := flag.String("config", "configs/salvo.yaml", "path to the YAML or JSON config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := injector.InitializeServer(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error initializing server:", err)
		os.Exit(1)
	}

	if err = srv.Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Server stopped with error:", err)
		os.Exit(1)
	}
}
