package main

import (
	"context"
	"log"

	"github.com/bodaboda-insure/core/internal/bootstrap"
)

// @title			Bodaboda Insure Core
// @version		v0.1.0
// @description	Rider micro-insurance payment engine, wallet ledger, policy issuance, batch scheduler and notification orchestrator.
// @license.name	Apache 2.0
// @license.url	http://www.apache.org/licenses/LICENSE-2.0.html
func main() {
	svc, err := bootstrap.Init(context.Background())
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	if err := svc.Run(); err != nil {
		log.Fatalf("service exited with error: %v", err)
	}
}
