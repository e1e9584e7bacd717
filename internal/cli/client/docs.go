package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// DocumentItem represents one document in a list response.
type DocumentItem struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	SizeBytes     int64  `json:"size_bytes"`
	Description   string `json:"description,omitempty"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
	CreatedAt     string `json:"created_at"`
}

// DocumentListResponse represents the list API response.
type DocumentListResponse struct {
	Items   []DocumentItem `json:"items"`
	Cursor  string         `json:"cursor,omitempty"`
	HasMore bool           `json:"has_more"`
}

// ListCmd creates the document list command.
func ListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runList(cmd, limit, cursor, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")

	return cmd
}

func runList(cmd *cobra.Command, limit int, cursor string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	resp, err := api.Get("/documents?" + params.Encode())
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	var listResp DocumentListResponse
	if err := json.Unmarshal(resp.Data, &listResp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(listResp, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(listResp.Items) == 0 {
		fmt.Println("No documents found.")
		return nil
	}

	fmt.Printf("Found %d documents:\n\n", len(listResp.Items))
	for i, item := range listResp.Items {
		fmt.Printf("%d. %s [%s]\n", i+1, item.Filename, item.Status)
		if item.Description != "" {
			fmt.Printf("   Description: %s\n", item.Description)
		}
		if item.FailureReason != "" {
			fmt.Printf("   Failure: %s\n", item.FailureReason)
		}
		fmt.Printf("   Chunks: %d, Size: %d bytes\n", item.ChunkCount, item.SizeBytes)
		fmt.Printf("   ID: %s\n", item.ID)
		if i < len(listResp.Items)-1 {
			fmt.Println(strings.Repeat("-", 40))
		}
	}

	if listResp.HasMore && listResp.Cursor != "" {
		fmt.Printf("\n%s\n", strings.Repeat("-", 40))
		fmt.Printf("More results available. Use --cursor %s\n", listResp.Cursor)
	}

	return nil
}

// DeleteCmd creates the document delete command.
func DeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its indexed chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			if _, err := api.Delete("/documents/" + args[0]); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}

			fmt.Printf("Deleted document %s\n", args[0])
			return nil
		},
	}

	return cmd
}

// StatsResponse represents the corpus stats payload.
type StatsResponse struct {
	DocumentCount  int64 `json:"document_count"`
	VectorCount    int64 `json:"vector_count"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// StatsCmd creates the stats command.
func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")

			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/documents/stats")
			if err != nil {
				return fmt.Errorf("stats failed: %w", err)
			}

			var stats StatsResponse
			if err := json.Unmarshal(resp.Data, &stats); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}

			if outputJSON {
				output, _ := json.MarshalIndent(stats, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			fmt.Printf("Documents: %d\n", stats.DocumentCount)
			fmt.Printf("Vectors:   %d\n", stats.VectorCount)
			fmt.Printf("Size:      %d bytes\n", stats.TotalSizeBytes)
			return nil
		},
	}

	return cmd
}

// ModelsCmd creates the models command.
func ModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List available provider models",
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClientWithCmd(cmd)
			if err != nil {
				return err
			}

			resp, err := api.Get("/models")
			if err != nil {
				return fmt.Errorf("models failed: %w", err)
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
				return fmt.Errorf("failed to format response: %w", err)
			}
			fmt.Println(pretty.String())
			return nil
		},
	}

	return cmd
}
