package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	timelineCmd := &cobra.Command{Use: "timeline", Short: "Timeline operations"}

	// merge (synchronous)
	mergeCmd := &cobra.Command{
		Use:   "merge CASE_ID",
		Short: "Run a synchronous merge pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/v0/cases/%s/timeline/merge", apiFlag, args[0]), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	timelineCmd.AddCommand(mergeCmd)

	// enqueue (async)
	enqueueCmd := &cobra.Command{
		Use:   "enqueue CASE_ID",
		Short: "Schedule an asynchronous merge job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/v0/cases/%s/timeline/merge-jobs", apiFlag, args[0]), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	timelineCmd.AddCommand(enqueueCmd)

	// list
	var limit int
	var before string
	listCmd := &cobra.Command{
		Use:   "list CASE_ID",
		Short: "List timeline entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if limit > 0 {
				q.Set("limit", fmt.Sprintf("%d", limit))
			}
			if before != "" {
				q.Set("before", before)
			}
			u := fmt.Sprintf("%s/v0/cases/%s/timeline", apiFlag, args[0])
			if enc := q.Encode(); enc != "" {
				u += "?" + enc
			}
			data, err := doGet(u)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum entries to return")
	listCmd.Flags().StringVarP(&before, "before", "b", "", "Only entries before this date (YYYY-MM-DD)")
	timelineCmd.AddCommand(listCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get CASE_ID EVENT_ID",
		Short: "Get a single timeline entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/v0/cases/%s/timeline/%s", apiFlag, args[0], args[1]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	timelineCmd.AddCommand(getCmd)

	// conflicts
	conflictsCmd := &cobra.Command{
		Use:   "conflicts CASE_ID",
		Short: "List entries awaiting conflict resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/v0/cases/%s/timeline/conflicts", apiFlag, args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	timelineCmd.AddCommand(conflictsCmd)

	// resolve
	var file, reviewedBy string
	resolveCmd := &cobra.Command{
		Use:   "resolve CASE_ID",
		Short: "Apply a batch of conflict resolutions from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var resolutions []map[string]interface{}
			if err := json.Unmarshal(raw, &resolutions); err != nil {
				return fmt.Errorf("invalid resolutions JSON: %w", err)
			}
			payload := map[string]interface{}{"resolutions": resolutions}
			if reviewedBy != "" {
				payload["reviewedBy"] = reviewedBy
			}
			data, err := doPostJSON(fmt.Sprintf("%s/v0/cases/%s/timeline/conflicts/resolve", apiFlag, args[0]), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	resolveCmd.Flags().StringVarP(&file, "file", "f", "", "Path to resolutions JSON array (required)")
	resolveCmd.Flags().StringVarP(&reviewedBy, "reviewedBy", "u", "", "Reviewer identity recorded in the audit trail")
	_ = resolveCmd.MarkFlagRequired("file")
	timelineCmd.AddCommand(resolveCmd)

	rootCmd.AddCommand(timelineCmd)
}
