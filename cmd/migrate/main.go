package main

import (
	"context"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"node.town/shabad/config"
	"node.town/shabad/db"
)

func main() {
	logger := log.New(os.Stdout)
	sqlLogger := logger.WithPrefix("data")

	if err := config.Init(viper.GetViper()); err != nil {
		logger.Fatal("read config", "error", err)
	}

	url := viper.GetString("database.url")
	if url == "" {
		logger.Fatal("missing database.url or SHABAD_DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	logger.Info("Starting database migration process...")
	pool, err := db.OpenDatabase(ctx, url, sqlLogger)
	if err != nil {
		logger.Fatal("apply migrations", "error", err)
	}
	pool.Close()

	logger.Info("Migrations applied successfully")
}
