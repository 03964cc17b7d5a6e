package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/use-agent/pagediff/models"
)

// client calls the pagediff HTTP API.
type client struct {
	http   *http.Client
	apiURL string
	apiKey string
}

func newClient(apiURL, apiKey string) *client {
	// A comparison renders two pages and may settle for several seconds each.
	return &client{
		http:   &http.Client{Timeout: 180 * time.Second},
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
	}
}

func (c *client) apiPost(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) apiGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.do(req)
}

// do sends req and returns the body. Non-2xx responses become errors
// carrying the API's error code.
func (c *client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e models.ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != nil {
			return nil, fmt.Errorf("[%s] %s", e.Error.Code, e.Error.Message)
		}
		return nil, fmt.Errorf("API returned %s", resp.Status)
	}
	return body, nil
}

func (c *client) handleComparePages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	before, err := request.RequireString("before_url")
	if err != nil {
		return mcp.NewToolResultError("before_url is required"), nil
	}
	after, err := request.RequireString("after_url")
	if err != nil {
		return mcp.NewToolResultError("after_url is required"), nil
	}

	respBody, err := c.apiPost(ctx, "/api/v1/diff", models.DiffRequest{BeforeURL: before, AfterURL: after})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("comparison failed: %v", err)), nil
	}

	var resp models.DiffResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse diff response: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Snapshot: %s\n\n", resp.ID)
	fmt.Fprintf(&sb, "Visual difference: %s\n", yesNo(resp.VisualDiff))
	fmt.Fprintf(&sb, "SEO metadata difference: %s\n", yesNo(resp.MetadataDiff))
	fmt.Fprintf(&sb, "Body structure difference: %s\n", yesNo(resp.BodyDiff))
	if resp.Similarity != nil && resp.BodyDiff {
		fmt.Fprintf(&sb, "Body similarity: structure %.0f%%, text %.0f%%\n",
			resp.Similarity.Structure*100, resp.Similarity.Text*100)
	}
	if resp.Timing != nil {
		fmt.Fprintf(&sb, "\nTook %dms (capture %dms, compare %dms)\n",
			resp.Timing.TotalMs, resp.Timing.CaptureMs, resp.Timing.CompareMs)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *client) handleGetSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}

	respBody, err := c.apiGet(ctx, "/api/v1/snapshots/"+url.PathEscape(id))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("snapshot request failed: %v", err)), nil
	}
	var snap models.SnapshotResponse
	if err := json.Unmarshal(respBody, &snap); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse snapshot: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Snapshot %s: %s\n", id, snap.Summary)
	if !snap.Complete || snap.Record == nil {
		return mcp.NewToolResultText(sb.String()), nil
	}

	for _, name := range []string{"before", "after"} {
		side := snap.Record.Side(name)
		fmt.Fprintf(&sb, "\n--- %s: %s ---\n", name, side.URL)

		body, err := c.apiGet(ctx, "/api/v1/snapshots/"+url.PathEscape(id)+"/"+name+"/metadata")
		if err != nil {
			fmt.Fprintf(&sb, "metadata unavailable: %v\n", err)
			continue
		}
		var md models.SideMetadataResponse
		if err := json.Unmarshal(body, &md); err != nil {
			fmt.Fprintf(&sb, "metadata unavailable: %v\n", err)
			continue
		}
		for _, e := range md.Metadata {
			fmt.Fprintf(&sb, "%s: %s\n", e.Key, e.Value)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (c *client) handleGetSnapshotBody(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	side, err := request.RequireString("side")
	if err != nil || (side != "before" && side != "after") {
		return mcp.NewToolResultError("side must be 'before' or 'after'"), nil
	}

	body, err := c.apiGet(ctx, "/api/v1/snapshots/"+url.PathEscape(id)+"/"+side+"/body?format=markdown")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("body request failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (c *client) handleListSnapshots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	respBody, err := c.apiGet(ctx, "/api/v1/snapshots")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list request failed: %v", err)), nil
	}
	var list models.SnapshotListResponse
	if err := json.Unmarshal(respBody, &list); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to parse list: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d snapshots:\n\n", list.Total)
	for _, id := range list.IDs {
		sb.WriteString(id + "\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
