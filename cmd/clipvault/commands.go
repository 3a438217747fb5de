package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/clipvault/internal/config"
)

func serverURL(cfg config.Config) string {
	return fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
}

func apiGet(cfg config.Config, path string) (*http.Response, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	req, err := http.NewRequest(http.MethodGet, serverURL(cfg)+path, nil)
	if err != nil {
		return nil, err
	}
	if cfg.Admin.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Admin.Token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return resp, nil
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and queue status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		resp, err := apiGet(cfg, "/health")
		if err != nil {
			printStatus("Server", "stopped")
			return nil
		}
		resp.Body.Close()
		printStatus("Server", "running on port %d", cfg.Server.Port)

		qResp, err := apiGet(cfg, "/api/admin/queue/status")
		if err != nil {
			printWarning("could not read queue status: %v", err)
			return nil
		}
		defer qResp.Body.Close()

		var q struct {
			PendingCount int `json:"pending_count"`
			DeadLetters  []struct {
				SubjectID  string `json:"subject_id"`
				Kind       string `json:"kind"`
				RetryCount int    `json:"retry_count"`
				LastError  string `json:"last_error"`
			} `json:"dead_letters"`
		}
		if err := json.NewDecoder(qResp.Body).Decode(&q); err != nil {
			return fmt.Errorf("decoding queue status: %w", err)
		}

		printStatus("Pending operations", "%d", q.PendingCount)
		printStatus("Dead letters", "%d", len(q.DeadLetters))
		for _, d := range q.DeadLetters {
			printWarning("%s %s (retries %d): %s", d.Kind, d.SubjectID, d.RetryCount, d.LastError)
		}

		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search archived clips",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		fields, _ := cmd.Flags().GetString("fields")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		params := url.Values{}
		params.Set("q", query)
		params.Set("page", fmt.Sprintf("%d", page))
		params.Set("page_size", fmt.Sprintf("%d", pageSize))
		if fields != "" {
			params.Set("fields", fields)
		}

		resp, err := apiGet(cfg, "/api/clips/search?"+params.Encode())
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var result struct {
			Clips []struct {
				SubjectID   string `json:"subject_id"`
				Description string `json:"description"`
				Creator     struct {
					Handle string `json:"handle"`
				} `json:"creator"`
				Tags    []string  `json:"tags"`
				AddedAt time.Time `json:"added_at"`
			} `json:"clips"`
			TotalCount int `json:"total_count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("decoding search response: %w", err)
		}

		if len(result.Clips) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		fmt.Printf("%d matches\n", result.TotalCount)
		for _, c := range result.Clips {
			desc := c.Description
			if len(desc) > 120 {
				desc = desc[:120] + "..."
			}
			fmt.Printf("\n%s  @%s  %s\n", colorize(colorBold, c.SubjectID), c.Creator.Handle, c.AddedAt.Format("2006-01-02"))
			if desc != "" {
				fmt.Printf("  %s\n", desc)
			}
			if len(c.Tags) > 0 {
				fmt.Printf("  %s\n", colorize(colorCyan, "#"+strings.Join(c.Tags, " #")))
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("page", 1, "result page (1-indexed)")
	searchCmd.Flags().Int("page-size", 20, "results per page")
	searchCmd.Flags().String("fields", "", "comma-separated fields: description,creator,tags")
}
