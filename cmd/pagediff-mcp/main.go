package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	apiURL := os.Getenv("PAGEDIFF_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("PAGEDIFF_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PAGEDIFF_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"pagediff",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	c := newClient(apiURL, apiKey)

	comparePagesTool := mcp.NewTool("compare_pages",
		mcp.WithDescription("Render two web pages in a headless browser and report whether they differ visually, in SEO metadata, or in semantic body structure. Returns the snapshot id for later review."),
		mcp.WithString("before_url",
			mcp.Required(),
			mcp.Description("The reference page (absolute http or https URL)"),
		),
		mcp.WithString("after_url",
			mcp.Required(),
			mcp.Description("The page to compare against the reference"),
		),
	)
	s.AddTool(comparePagesTool, c.handleComparePages)

	getSnapshotTool := mcp.NewTool("get_snapshot",
		mcp.WithDescription("Fetch a stored comparison: its verdicts, both URLs and the SEO metadata of each side."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Snapshot id returned by compare_pages"),
		),
	)
	s.AddTool(getSnapshotTool, c.handleGetSnapshot)

	getBodyTool := mcp.NewTool("get_snapshot_body",
		mcp.WithDescription("Return the normalized body of one side of a stored comparison as Markdown."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Snapshot id returned by compare_pages"),
		),
		mcp.WithString("side",
			mcp.Required(),
			mcp.Description("Which page: 'before' or 'after'"),
			mcp.Enum("before", "after"),
		),
	)
	s.AddTool(getBodyTool, c.handleGetSnapshotBody)

	listSnapshotsTool := mcp.NewTool("list_snapshots",
		mcp.WithDescription("List the ids of all stored comparisons, oldest first."),
	)
	s.AddTool(listSnapshotsTool, c.handleListSnapshots)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}
