// Command bridge serves the browser-extension protocol on a loopback port.
package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/keeperbridge/internal/app"
	"github.com/dmitrijs2005/keeperbridge/internal/buildinfo"
	"github.com/dmitrijs2005/keeperbridge/internal/config"
)

func main() {
	buildinfo.Print(os.Stdout)

	ctx := context.Background()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.NewApp(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := a.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
