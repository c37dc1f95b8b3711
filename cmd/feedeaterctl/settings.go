package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jhacksman/feedeater/internal/settings"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write module settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get MODULE [KEY]",
	Short: "Get all settings for a module, or one key",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mod := args[0]
		client := newAPIClient(apiBaseURL)

		if len(args) == 2 {
			var resp struct {
				Module string `json:"module"`
				Key    string `json:"key"`
				Value  string `json:"value"`
			}
			if err := client.get("/api/settings/"+mod+"/"+args[1], nil, &resp); err != nil {
				return err
			}
			fmt.Println(resp.Value)
			return nil
		}

		var all []settings.Setting
		if err := client.get("/api/settings/"+mod, nil, &all); err != nil {
			return err
		}
		for _, s := range all {
			fmt.Printf("%-30s %s\n", s.Key, s.Value)
		}
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set MODULE KEY VALUE",
	Short: "Set a module setting",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetBool("secret")
		body := map[string]any{"value": args[2], "isSecret": secret}
		if err := newAPIClient(apiBaseURL).put("/api/settings/"+args[0]+"/"+args[1], body); err != nil {
			return err
		}
		fmt.Printf("%s/%s updated\n", args[0], args[1])
		return nil
	},
}

func init() {
	settingsSetCmd.Flags().Bool("secret", false, "mark this value as a secret (redacted on read)")
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
