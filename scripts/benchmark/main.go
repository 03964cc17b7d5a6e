package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/use-agent/pagediff/models"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "pagediff API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per pair")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Self-comparisons should never report a difference; any verdict on them
// is a false positive of the settle/normalize/tolerance chain.
var testPairs = []struct {
	Label  string
	Before string
	After  string
}{
	{"Static", "https://example.com", "https://example.com"},
	{"Blog", "https://go.dev/blog/go1.21", "https://go.dev/blog/go1.21"},
	{"Docs", "https://go.dev/doc/effective_go", "https://go.dev/doc/effective_go"},
	{"News", "https://www.bbc.com/news", "https://www.bbc.com/news"},
	{"Different", "https://go.dev/blog/go1.21", "https://go.dev/blog/go1.22"},
}

// --- Benchmark result types ---

type runResult struct {
	Run          int     `json:"run"`
	TotalMs      int64   `json:"total_ms"`
	CaptureMs    int64   `json:"capture_ms"`
	CompareMs    int64   `json:"compare_ms"`
	VisualDiff   bool    `json:"visual_diff"`
	MetadataDiff bool    `json:"metadata_diff"`
	BodyDiff     bool    `json:"body_diff"`
	Similarity   float64 `json:"structure_similarity"`
	SnapshotID   string  `json:"snapshot_id,omitempty"`
	Success      bool    `json:"success"`
	Error        string  `json:"error,omitempty"`
}

type pairSummary struct {
	TotalMs   float64 `json:"total_ms"`
	CaptureMs float64 `json:"capture_ms"`
	CompareMs float64 `json:"compare_ms"`
	// DiffRate is the share of successful runs reporting any difference.
	DiffRate float64 `json:"diff_rate"`
}

type pairResult struct {
	Label   string       `json:"label"`
	Before  string       `json:"before"`
	After   string       `json:"after"`
	Runs    []runResult  `json:"runs"`
	Summary *pairSummary `json:"summary,omitempty"`
}

type benchmarkReport struct {
	Timestamp   string       `json:"timestamp"`
	APIURL      string       `json:"api_url"`
	RunsPerPair int          `json:"runs_per_pair"`
	Results     []pairResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== pagediff Stability Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/pair: %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		APIURL:      *apiURL,
		RunsPerPair: *runs,
	}

	client := &http.Client{Timeout: 180 * time.Second}
	for _, p := range testPairs {
		fmt.Printf("Benchmarking [%s] %s vs %s ...\n", p.Label, p.Before, p.After)
		pr := pairResult{Label: p.Label, Before: p.Before, After: p.After}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := comparePair(client, p.Before, p.After, i)
			if rr.Success {
				fmt.Printf("OK  %dms  visual=%t metadata=%t body=%t\n",
					rr.TotalMs, rr.VisualDiff, rr.MetadataDiff, rr.BodyDiff)
			} else {
				fmt.Printf("FAILED: %s\n", rr.Error)
			}
			pr.Runs = append(pr.Runs, rr)
		}

		pr.Summary = summarize(pr.Runs)
		report.Results = append(report.Results, pr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func comparePair(client *http.Client, before, after string, run int) runResult {
	rr := runResult{Run: run}

	body, err := json.Marshal(models.DiffRequest{BeforeURL: before, AfterURL: after})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/diff", bytes.NewReader(body))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	var dr models.DiffResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	if dr.Error != nil {
		rr.Error = fmt.Sprintf("[%s] %s", dr.Error.Code, dr.Error.Message)
		return rr
	}

	rr.Success = true
	rr.SnapshotID = dr.ID
	rr.VisualDiff = dr.VisualDiff
	rr.MetadataDiff = dr.MetadataDiff
	rr.BodyDiff = dr.BodyDiff
	if dr.Similarity != nil {
		rr.Similarity = dr.Similarity.Structure
	}
	if dr.Timing != nil {
		rr.TotalMs = dr.Timing.TotalMs
		rr.CaptureMs = dr.Timing.CaptureMs
		rr.CompareMs = dr.Timing.CompareMs
	}
	return rr
}

func summarize(runs []runResult) *pairSummary {
	var ok, differing int
	var s pairSummary

	for _, r := range runs {
		if !r.Success {
			continue
		}
		ok++
		s.TotalMs += float64(r.TotalMs)
		s.CaptureMs += float64(r.CaptureMs)
		s.CompareMs += float64(r.CompareMs)
		if r.VisualDiff || r.MetadataDiff || r.BodyDiff {
			differing++
		}
	}
	if ok == 0 {
		return nil
	}

	n := float64(ok)
	s.TotalMs /= n
	s.CaptureMs /= n
	s.CompareMs /= n
	s.DiffRate = float64(differing) / n
	return &s
}

func printTable(results []pairResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Pair\tAvg Latency\tCapture\tCompare\tDiff Rate\n")
	fmt.Fprintf(w, "────\t───────────\t───────\t───────\t─────────\n")

	for _, r := range results {
		if r.Summary == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t-\n", r.Label)
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%dms\t%.0f%%\n",
			r.Label,
			int64(r.Summary.TotalMs),
			int64(r.Summary.CaptureMs),
			int64(r.Summary.CompareMs),
			r.Summary.DiffRate*100,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
