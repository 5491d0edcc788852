// cmd/tools/init-db/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"applicant-portal/internal/application/store"
	"applicant-portal/internal/common/config"
	"applicant-portal/internal/common/database"
	"applicant-portal/internal/common/logger"
)

func main() {
	configPath := flag.String("config", "", "config file (default: configs/config.yaml + environment overlay)")
	printOnly := flag.Bool("print", false, "print the schema for the configured driver and exit")
	driver := flag.String("driver", "", "override database.driver")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}
	if *driver != "" {
		cfg.Database.Driver = *driver
	}

	dialect, err := store.DialectFor(cfg.Database.Driver)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *printOnly {
		fmt.Print(dialect.Schema)
		return
	}

	log := logger.NewStructured(cfg.Logging.Level, "console")
	zapLog := logger.Zap(log)
	defer zapLog.Sync()

	db, err := database.Open(cfg.Database)
	if err != nil {
		zapLog.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.Ping(ctx, db); err != nil {
		zapLog.Fatal("database unreachable", zap.Error(err))
	}

	st := store.New(db, dialect, log)
	if err := st.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("schema applied", zap.String("driver", dialect.Name))
}
