package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/shabad/config"
	"node.town/shabad/db"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write config.yaml interactively",
	Run:   runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) {
	mainLogger, _, _, dataLogger := createLoggers(viper.GetString("log.level"))
	mainLogger.Info("starting setup")

	backend := viper.GetString("stt.backend")
	language := viper.GetString("stt.language")
	port := strconv.Itoa(viper.GetInt("http.port"))

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Recognizer backend").
				Options(
					huh.NewOption("Placeholder (no external service)", config.BackendPlaceholder),
					huh.NewOption("Google Cloud Speech-to-Text", config.BackendGoogle),
					huh.NewOption("Speechmatics realtime", config.BackendSpeechmatics),
				).
				Value(&backend),
			huh.NewInput().
				Title("Recognition language").
				Value(&language),
			huh.NewInput().
				Title("HTTP port").
				Value(&port).
				Validate(func(s string) error {
					_, err := strconv.Atoi(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		mainLogger.Fatal("setup form", "error", err)
	}

	var credentials, apiKey string
	switch backend {
	case config.BackendGoogle:
		credentials = viper.GetString("stt.google_credentials")
		err = huh.NewInput().
			Title("Path to the Google service account JSON").
			Value(&credentials).
			Run()
	case config.BackendSpeechmatics:
		apiKey = viper.GetString("stt.speechmatics_api_key")
		err = huh.NewInput().
			Title("Speechmatics API key").
			EchoMode(huh.EchoModePassword).
			Value(&apiKey).
			Run()
	}
	if err != nil {
		mainLogger.Fatal("setup form", "error", err)
	}

	databaseURL := viper.GetString("database.url")
	err = huh.NewInput().
		Title("Postgres URL for the transcript journal (empty to disable)").
		Value(&databaseURL).
		Run()
	if err != nil {
		mainLogger.Fatal("setup form", "error", err)
	}

	portNumber, _ := strconv.Atoi(port)
	viper.Set("stt.backend", backend)
	viper.Set("stt.language", language)
	viper.Set("http.port", portNumber)
	viper.Set("stt.google_credentials", credentials)
	viper.Set("stt.speechmatics_api_key", apiKey)
	viper.Set("database.url", databaseURL)

	if _, err := config.Load(); err != nil {
		mainLogger.Fatal("invalid configuration", "error", err)
	}

	if databaseURL != "" {
		migrate := true
		huh.NewConfirm().
			Title("Create the journal tables now?").
			Value(&migrate).
			Run()

		if migrate {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			pool, err := db.OpenDatabase(ctx, databaseURL, dataLogger)
			cancel()
			if err != nil {
				mainLogger.Fatal("open database", "error", err)
			}
			pool.Close()
		}
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		overwrite := false
		huh.NewConfirm().
			Title("config.yaml exists. Overwrite it?").
			Value(&overwrite).
			Run()
		if !overwrite {
			mainLogger.Info("setup cancelled")
			return
		}
	}

	if err := viper.WriteConfigAs("config.yaml"); err != nil {
		mainLogger.Fatal("write config.yaml", "error", err)
	}

	mainLogger.Info("setup completed", "file", "config.yaml")
}
