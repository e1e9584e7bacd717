package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// UploadResponse mirrors the server's document payload.
type UploadResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	SizeBytes     int64  `json:"size_bytes"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
	CreatedAt     string `json:"created_at"`
}

// UploadCmd creates the upload command.
func UploadCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document into the knowledge base",
		Long:  "Uploads a file (.pdf, .txt, .md, .json), extracts its text, and indexes it for retrieval.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUpload(cmd, args[0], description, outputJSON)
		},
	}

	cmd.Flags().StringVarP(&description, "description", "d", "", "Optional document description")

	return cmd
}

func runUpload(cmd *cobra.Command, path, description string, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := api.PostMultipart("/upload", path, map[string]string{
		"description": description,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	var doc UploadResponse
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Uploaded %s (%d bytes)\n", doc.Filename, doc.SizeBytes)
	fmt.Printf("  ID: %s\n", doc.ID)
	fmt.Printf("  Status: %s\n", doc.Status)
	if doc.FailureReason != "" {
		fmt.Printf("  Failure: %s\n", doc.FailureReason)
	}
	fmt.Printf("  Chunks: %d\n", doc.ChunkCount)

	return nil
}
