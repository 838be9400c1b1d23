// Command migrate applies or rolls back the embedded schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/careloop/patient-email-api/internal/config"
	"github.com/careloop/patient-email-api/internal/db"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if *down {
		err = db.RollbackLast(cfg.DatabaseURL)
	} else {
		err = db.RunMigrations(cfg.DatabaseURL)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations complete")
}
