package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/pagesnap/models"
	"github.com/use-agent/pagesnap/packager"
)

// snapshotRequest mirrors the API request model.
type snapshotRequest struct {
	URLs    []string `json:"urls"`
	Timeout int      `json:"timeout,omitempty"`
}

func main() {
	apiURL := os.Getenv("PAGESNAP_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PAGESNAP_API_KEY")

	s := server.NewMCPServer(
		"pagesnap",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	snapshotTool := mcp.NewTool("snapshot_urls",
		mcp.WithDescription("Capture web pages as self-contained HTML snapshots using a real browser. Returns, per URL, the snapshot filename and size, or why it could not be captured. With output_dir set, the HTML files are written there."),
		mcp.WithArray("urls",
			mcp.Required(),
			mcp.Description("List of absolute http(s) URLs to capture"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Batch deadline in seconds (server default when omitted)"),
		),
		mcp.WithString("output_dir",
			mcp.Description("Directory to write the decoded HTML files into"),
		),
	)
	s.AddTool(snapshotTool, handleSnapshotURLs(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleSnapshotURLs(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 15 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		urls, err := request.RequireStringSlice("urls")
		if err != nil {
			return mcp.NewToolResultError("urls is required and must be an array of strings"), nil
		}
		payload := snapshotRequest{
			URLs:    urls,
			Timeout: int(request.GetFloat("timeout", 0)),
		}
		outDir := request.GetString("output_dir", "")

		status, respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/snapshots", payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			var errResp models.ErrorResponse
			if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil {
				return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", errResp.Error.Code, errResp.Error.Message)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("API returned status %d", status)), nil
		}

		var resp models.SnapshotResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		text, err := summarize(&resp, outDir)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	}
}

// apiPost sends a POST request to the API and returns status and body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload interface{}) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// summarize renders one line per URL, writing files into outDir when set.
func summarize(resp *models.SnapshotResponse, outDir string) (string, error) {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}

	urls := make([]string, 0, len(resp.URLMappings))
	for u := range resp.URLMappings {
		urls = append(urls, u)
	}
	sort.Strings(urls)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Batch %s: %s\n\n", resp.ID, resp.Message)
	for _, u := range urls {
		e := resp.URLMappings[u]
		if !e.Resolved() {
			fmt.Fprintf(&sb, "- %s: not captured (%s)\n", u, e.Error.Code)
			continue
		}
		line := fmt.Sprintf("- %s: %s (%d bytes, fingerprint %s)", u, e.Filename, e.Size, e.Fingerprint)
		if outDir != "" {
			raw, err := packager.Decode(e.Content)
			if err != nil {
				return "", fmt.Errorf("decode %s: %w", u, err)
			}
			path := filepath.Join(outDir, filepath.Base(e.Filename))
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				return "", fmt.Errorf("write %s: %w", path, err)
			}
			line += " -> " + path
		}
		sb.WriteString(line + "\n")
	}
	fmt.Fprintf(&sb, "\n%d of %d captured in %dms\n", resp.Stats.Packaged, resp.Stats.Requested, resp.Stats.ElapsedMs)
	return sb.String(), nil
}
