// Command webgrabber-mcp exposes webgrabber's run-management API as
// MCP tools, proxying every call over HTTP to an already-running
// webgrabber-gui instance.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// runAcceptedResponse mirrors models.RunAcceptedResponse.
type runAcceptedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// runStatusResponse mirrors models.RunStatusResponse.
type runStatusResponse struct {
	RunID       string `json:"run_id"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	FinishedAt  string `json:"finished_at"`
	FileCount   int    `json:"file_count"`
	ArchivePath string `json:"archive_path"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("WEBGRABBER_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8089"
	}
	apiKey := os.Getenv("WEBGRABBER_API_KEY")

	s := server.NewMCPServer(
		"webgrabber",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	captureURLTool := mcp.NewTool("capture_url",
		mcp.WithDescription("Retrieve the full source or static content of a software artifact from a URL. Detects the hosting platform (git host, SSH host, PaaS, container registry, or plain website) and picks the matching acquisition strategy automatically, then waits for the run to finish."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the artifact to retrieve"),
		),
		mcp.WithString("output_root",
			mcp.Required(),
			mcp.Description("Directory to write the captured content into"),
		),
		mcp.WithString("archive",
			mcp.Description("Package the result after capture: 'zip' or 'tar.gz'"),
			mcp.Enum("zip", "tar.gz"),
		),
	)
	s.AddTool(captureURLTool, handleCaptureURL(apiURL, apiKey))

	runStatusTool := mcp.NewTool("run_status",
		mcp.WithDescription("Check the status of a previously started run without waiting for it to finish."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run ID returned by capture_url or a prior run_status call"),
		),
	)
	s.AddTool(runStatusTool, handleRunStatus(apiURL, apiKey))

	cancelRunTool := mcp.NewTool("cancel_run",
		mcp.WithDescription("Cancel an in-progress run. Already-downloaded files are kept."),
		mcp.WithString("run_id",
			mcp.Required(),
			mcp.Description("The run ID to cancel"),
		),
	)
	s.AddTool(cancelRunTool, handleCancelRun(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a POST request to the webgrabber API and returns the
// response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// apiGet sends a GET request to the webgrabber API and returns the
// response body.
func apiGet(ctx context.Context, client *http.Client, apiURL, apiKey, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollRunCompletion polls a run's status endpoint until it leaves the
// "running" state or the context is cancelled.
func pollRunCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, runID string) (runStatusResponse, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return runStatusResponse{}, ctx.Err()
		case <-ticker.C:
			body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/runs/"+runID)
			if err != nil {
				return runStatusResponse{}, fmt.Errorf("poll request failed: %w", err)
			}

			var status runStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return runStatusResponse{}, fmt.Errorf("parse poll status: %w", err)
			}

			if status.Status != "running" && status.Status != "accepted" {
				return status, nil
			}
		}
	}
}

func formatRunStatus(status runStatusResponse) string {
	if status.Status == "failed" && status.Error != nil {
		return fmt.Sprintf("Run %s failed: [%s] %s", status.RunID, status.Error.Code, status.Error.Message)
	}

	result := fmt.Sprintf("Run %s: %s\nFiles captured: %d", status.RunID, status.Status, status.FileCount)
	if status.ArchivePath != "" {
		result += fmt.Sprintf("\nArchive: %s", status.ArchivePath)
	}
	return result
}

func handleCaptureURL(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		outputRoot, err := request.RequireString("output_root")
		if err != nil {
			return mcp.NewToolResultError("output_root is required"), nil
		}

		payload := map[string]string{
			"url":         url,
			"output_root": outputRoot,
		}
		if archive := request.GetString("archive", ""); archive != "" {
			payload["archive"] = archive
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/runs", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run request failed: %v", err)), nil
		}

		var accepted runAcceptedResponse
		if err := json.Unmarshal(respBody, &accepted); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse run response: %v", err)), nil
		}
		if accepted.RunID == "" {
			return mcp.NewToolResultError("run creation failed: " + string(respBody)), nil
		}

		status, err := pollRunCompletion(ctx, client, apiURL, apiKey, accepted.RunID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling run failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatRunStatus(status)), nil
	}
}

func handleRunStatus(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}

		body, err := apiGet(ctx, client, apiURL, apiKey, "/api/v1/runs/"+runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("status request failed: %v", err)), nil
		}

		var status runStatusResponse
		if err := json.Unmarshal(body, &status); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse status response: %v", err)), nil
		}

		return mcp.NewToolResultText(formatRunStatus(status)), nil
	}
}

func handleCancelRun(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		runID, err := request.RequireString("run_id")
		if err != nil {
			return mcp.NewToolResultError("run_id is required"), nil
		}

		body, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/runs/"+runID+"/cancel", map[string]string{})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cancel request failed: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Cancellation requested for run %s: %s", runID, string(body))), nil
	}
}
