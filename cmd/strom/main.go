package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"strom/internal/app/strom"
	"strom/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.ParseConfig()
	if err != nil {
		log.Fatal(err)
	}

	app, err := strom.GetApp(ctx, cfg, nil)
	if err != nil {
		log.Fatal("strom.GetApp: ", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	errCh := app.Start(runCtx)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Println("shutdown with an error: ", err)
	case <-exit:
		fmt.Println("shutdown by sigterm")
	}
	cancel()

	if err := app.Stop(ctx); err != nil {
		log.Fatal("app.Stop: ", err)
	}
}
