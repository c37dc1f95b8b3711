package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

type jobStatusEntry struct {
	Module    string `json:"module"`
	Job       string `json:"job"`
	Status    string `json:"status"`
	LastRunAt string `json:"lastRunAt,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Check and trigger scheduled jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every registered job",
	RunE: func(cmd *cobra.Command, args []string) error {
		var entries []jobStatusEntry
		if err := newAPIClient(apiBaseURL).get("/api/jobs/status", nil, &entries); err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no jobs registered")
			return nil
		}
		for _, e := range entries {
			line := fmt.Sprintf("%-12s %-10s %-12s", e.Module, e.Job, e.Status)
			if e.LastRunAt != "" {
				line += " lastRunAt=" + e.LastRunAt
			}
			if e.LastError != "" {
				line += " lastError=" + e.LastError
			}
			fmt.Println(line)
		}
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run MODULE JOB",
	Short: "Trigger a manual job run (single-flight with any scheduled run)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			JobID string `json:"jobId"`
		}
		body := map[string]string{"module": args[0], "job": args[1]}
		if err := newAPIClient(apiBaseURL).post("/api/jobs/run", body, &resp); err != nil {
			return err
		}
		fmt.Printf("triggered %s/%s: jobId=%s\n", args[0], args[1], resp.JobID)
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsRunCmd)
}
