package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhacksman/feedeater/internal/module"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "Inspect registered modules",
}

var modulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered modules and their jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		var manifests []module.Manifest
		if err := newAPIClient(apiBaseURL).get("/api/modules", nil, &manifests); err != nil {
			return err
		}
		if len(manifests) == 0 {
			fmt.Println("no modules registered")
			return nil
		}
		for _, m := range manifests {
			fmt.Printf("%-15s v%-8s queues=%v\n", m.Name, m.Version, m.Queues)
			for _, j := range m.Jobs {
				fmt.Printf("  job %-10s queue=%-10s schedule=%q\n", j.Name, j.Queue, j.Schedule)
			}
		}
		return nil
	},
}

func init() {
	modulesCmd.AddCommand(modulesListCmd)
}
