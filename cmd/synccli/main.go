package main

import (
	"context"
	"log"

	"github.com/nimbusbrowser/nimbus/internal/client/cli"
	"github.com/nimbusbrowser/nimbus/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}
	defer app.Close()

	app.Run(ctx)

}
