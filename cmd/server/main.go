package main

import (
	"context"
	"log"

	"live-results/dashboard/internal/app"
)

func main() {
	if err := app.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
