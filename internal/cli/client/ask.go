package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// AskResponse mirrors the server's single-shot query payload.
type AskResponse struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Status      string `json:"status"`
	EmptyCorpus bool   `json:"empty_corpus,omitempty"`
}

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	var (
		topK     int
		noStream bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question against the knowledge base",
		Long:  "Retrieves the most relevant document chunks and generates an answer grounded in them. Streams by default.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			if noStream || outputJSON {
				return runAsk(cmd, args[0], topK, outputJSON)
			}
			return runAskStream(cmd, args[0], topK)
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (server default when 0)")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the full answer instead of streaming")

	return cmd
}

func runAsk(cmd *cobra.Command, question string, topK int, outputJSON bool) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	body := map[string]any{"question": question}
	if topK > 0 {
		body["top_k"] = topK
	}

	raw, err := api.PostRaw("/query", body)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if outputJSON {
		fmt.Println(string(raw))
		return nil
	}

	var resp AskResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.EmptyCorpus {
		fmt.Fprintln(os.Stderr, "(knowledge base is empty; answer is ungrounded)")
	}
	fmt.Println(resp.Answer)
	return nil
}

func runAskStream(cmd *cobra.Command, question string, topK int) error {
	api, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	params := url.Values{}
	params.Set("question", question)
	if topK > 0 {
		params.Set("top_k", strconv.Itoa(topK))
	}

	var streamErr error
	err = api.Stream("/stream?"+params.Encode(), func(event map[string]any) error {
		if chunk, ok := event["chunk"].(string); ok {
			fmt.Print(chunk)
			return nil
		}
		if msg, ok := event["error"].(string); ok {
			streamErr = fmt.Errorf("stream failed: %s", msg)
			if partial, _ := event["partial"].(bool); partial {
				streamErr = fmt.Errorf("stream failed after partial output: %s", msg)
			}
		}
		return nil
	})
	fmt.Println()

	if err != nil {
		return err
	}
	return streamErr
}
