package main

import (
	"context"
	"log"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server"
	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
