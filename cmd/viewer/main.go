package main

import (
	"context"
	"log"

	"live-results/dashboard/internal/viewer"
)

func main() {
	if err := viewer.Run(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
