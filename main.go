package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/shabad/config"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(streamCmd)

	rootCmd.PersistentFlags().Int("port", 5001, "HTTP server port")
	rootCmd.PersistentFlags().String("backend", "placeholder", "Recognizer backend (placeholder, google, speechmatics)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres URL for the transcript journal")

	viper.BindPFlag("http.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("stt.backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag(
		"database.url",
		rootCmd.PersistentFlags().Lookup("database-url"),
	)
}

func initConfig() {
	logger = log.New(os.Stderr)

	if err := config.Init(viper.GetViper()); err != nil {
		fmt.Printf("Error reading config file: %s\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shabad",
	Short: "Shabad streams live audio to speech recognition",
	Long:  `Shabad relays audio from browser clients to a streaming speech recognizer and sends transcripts and matching verses back.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func createLoggers(level string) (mainLogger, sockLogger, hearLogger, dataLogger *log.Logger) {
	logLevel, err := log.ParseLevel(level)
	if err != nil {
		logLevel = log.InfoLevel
	}

	logger.SetLevel(logLevel)
	logger.SetReportCaller(true)
	logger.SetCallerFormatter(
		func(file string, line int, funcName string) string {
			path, err := filepath.Rel(".", file)
			if err != nil {
				path = file
			}
			return fmt.Sprintf("%s:%d", path, line)
		},
	)

	styles := log.DefaultStyles()
	styles.Prefix = styles.Prefix.MarginTop(1).
		Bold(false).Transform(func(s string) string {
		return strings.TrimSuffix(s, ":")
	})
	styles.Levels[log.InfoLevel] = styles.Levels[log.InfoLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.WarnLevel] = styles.Levels[log.WarnLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Levels[log.ErrorLevel] = styles.Levels[log.ErrorLevel].
		MaxWidth(6).
		MarginRight(1).
		Bold(false)
	styles.Message = styles.Message.Bold(true).Width(24)
	styles.Key = styles.Key.MarginLeft(1).
		Bold(false).
		Foreground(lipgloss.Color("#ff8800"))

	logger.SetStyles(styles)

	mainLogger = logger.With().WithPrefix("main")
	sockLogger = logger.With().WithPrefix("sock")
	hearLogger = logger.With().WithPrefix("hear")
	dataLogger = logger.With().WithPrefix("data")

	return
}
