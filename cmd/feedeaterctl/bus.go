package main

import (
	"bufio"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jhacksman/feedeater/internal/bus"
)

var busCmd = &cobra.Command{
	Use:   "bus",
	Short: "Inspect the canonical event bus",
}

var busHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently persisted envelopes",
	RunE: func(cmd *cobra.Command, args []string) error {
		sinceMinutes, _ := cmd.Flags().GetInt("since-minutes")
		limit, _ := cmd.Flags().GetInt("limit")
		mod, _ := cmd.Flags().GetString("module")
		stream, _ := cmd.Flags().GetString("stream")
		q, _ := cmd.Flags().GetString("q")

		query := url.Values{}
		query.Set("sinceMinutes", strconv.Itoa(sinceMinutes))
		query.Set("limit", strconv.Itoa(limit))
		if mod != "" {
			query.Set("module", mod)
		}
		if stream != "" {
			query.Set("stream", stream)
		}
		if q != "" {
			query.Set("q", q)
		}

		var rows []bus.HistoryRow
		if err := newAPIClient(apiBaseURL).get("/api/bus/history", query, &rows); err != nil {
			return err
		}
		for _, r := range rows {
			fmt.Printf("[%s] %-30s %s %s\n", r.ReceivedAt.Format("15:04:05"), r.Subject, r.MessageID, string(r.Data))
		}
		return nil
	},
}

// busTailCmd streams GET /api/bus/stream, printing each messageCreated
// event's data line as it arrives. It reads the raw SSE framing itself
// rather than pulling in an SSE client library, matching feedeaterctl's
// thin-wrapper scope.
var busTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream live bus envelopes (history replay, then live)",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := newSSERequest(apiBaseURL + "/api/bus/stream")
		if err != nil {
			return err
		}
		resp, err := httpDoStreaming(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				fmt.Println(data)
			}
		}
		return scanner.Err()
	},
}

func init() {
	busHistoryCmd.Flags().Int("since-minutes", 60, "how far back to look")
	busHistoryCmd.Flags().Int("limit", 100, "maximum rows to return")
	busHistoryCmd.Flags().String("module", "", "filter by module")
	busHistoryCmd.Flags().String("stream", "", "filter by stream")
	busHistoryCmd.Flags().String("q", "", "free-text filter")

	busCmd.AddCommand(busHistoryCmd)
	busCmd.AddCommand(busTailCmd)
}
