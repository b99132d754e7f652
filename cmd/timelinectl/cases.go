package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	casesCmd := &cobra.Command{Use: "cases", Short: "Case operations"}

	// create
	var caseId, registryRef, title string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a case for timeline tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"caseId": caseId, "registryRef": registryRef}
			if title != "" {
				payload["title"] = title
			}
			data, err := doPostJSON(fmt.Sprintf("%s/v0/cases", apiFlag), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	createCmd.Flags().StringVarP(&caseId, "caseId", "c", "", "Case ID (required)")
	createCmd.Flags().StringVarP(&registryRef, "registryRef", "r", "", "Court-registry process number (required)")
	createCmd.Flags().StringVarP(&title, "title", "t", "", "Case title")
	_ = createCmd.MarkFlagRequired("caseId")
	_ = createCmd.MarkFlagRequired("registryRef")
	casesCmd.AddCommand(createCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get CASE_ID",
		Short: "Get case by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/v0/cases/%s", apiFlag, args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	casesCmd.AddCommand(getCmd)

	// list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/v0/cases", apiFlag))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	casesCmd.AddCommand(listCmd)

	// extractions add
	var file string
	extractCmd := &cobra.Command{
		Use:   "add-extraction CASE_ID",
		Short: "Submit a preview-extraction snapshot from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var payload map[string]interface{}
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("invalid extraction JSON: %w", err)
			}
			data, err := doPostJSON(fmt.Sprintf("%s/v0/cases/%s/extractions", apiFlag, args[0]), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	extractCmd.Flags().StringVarP(&file, "file", "f", "", "Path to extraction JSON (required)")
	_ = extractCmd.MarkFlagRequired("file")
	casesCmd.AddCommand(extractCmd)

	rootCmd.AddCommand(casesCmd)
}
