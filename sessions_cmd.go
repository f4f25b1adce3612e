package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"node.town/shabad/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List the live sessions of a running server",
	Run:   runListSessions,
}

func init() {
	sessionsCmd.Flags().String("server", "", "Server base URL (default http://localhost:<port>)")
}

func serverURL(cmd *cobra.Command, scheme string) string {
	server, _ := cmd.Flags().GetString("server")
	if server != "" {
		return server
	}
	return fmt.Sprintf("%s://localhost:%d", scheme, viper.GetInt("http.port"))
}

func runListSessions(cmd *cobra.Command, args []string) {
	mainLogger, _, _, _ := createLoggers(viper.GetString("log.level"))

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(serverURL(cmd, "http") + "/api/sessions")
	if err != nil {
		mainLogger.Fatal("fetch sessions", "error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		mainLogger.Fatal("fetch sessions", "status", resp.Status)
	}

	var infos []session.Info
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		mainLogger.Fatal("decode sessions", "error", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Connection", "Session", "State", "Started At", "Age", "Queued", "Dropped"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, info := range infos {
		table.Append([]string{
			info.ConnectionID,
			info.SessionID,
			info.State,
			info.StartedAt.Local().Format("2006-01-02 15:04:05"),
			time.Since(info.StartedAt).Round(time.Second).String(),
			strconv.Itoa(info.Queued),
			strconv.Itoa(info.Dropped),
		})
	}

	table.Render()
}
