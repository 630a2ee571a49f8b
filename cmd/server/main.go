// Package main starts the camp registration service.
//
// This process owns the public registration API, the admin surface, and the
// one-time legacy import that runs before serving.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	servercmd "github.com/seibukan/gasshuku/internal/cmd/server"
)

func main() {
	// A missing .env file is the normal production case.
	_ = godotenv.Load()

	log.SetPrefix("[GASSHUKU] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := servercmd.ParseConfig()
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}

	if err := servercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
