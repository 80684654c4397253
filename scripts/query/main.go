package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/query"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	apiAddr := flag.String("api", "http://localhost:8080", "Base URL of fm-api.")
	configPath := flag.String("config", "configs/config.yaml", "Configuration file, used in direct mode.")
	profile := flag.String("profile", "", "Profile to query (optional).")
	flowID := flag.String("flow", "", "Trace this Flow ID instead of listing summaries.")
	endTimeStr := flag.String("end", "", "End time in RFC3339 format (e.g., 2025-09-12T15:10:00Z).")
	flag.Parse()

	log.Printf("Running in '%s' mode.", *mode)

	switch *mode {
	case "api":
		queryViaAPI(*apiAddr, *profile, *flowID, *endTimeStr)
	case "direct":
		directQuery(*configPath, *profile, *flowID, *endTimeStr)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base, profile, flowID, endTime string) {
	var resp *http.Response
	var err error
	if flowID != "" {
		body, _ := json.Marshal(map[string]string{"profile": profile, "flow_id": flowID, "end_time": endTime})
		log.Printf("Sending trace request with body:\n%s\n", body)
		resp, err = http.Post(base+"/api/v1/flows/trace", "application/json", bytes.NewReader(body))
	} else {
		q := url.Values{}
		if profile != "" {
			q.Set("profile", profile)
		}
		if endTime != "" {
			q.Set("end", endTime)
		}
		resp, err = http.Get(base + "/api/v1/summaries?" + q.Encode())
	}
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	log.Println("---")
	fmt.Println(prettyJSON.String())
}

func directQuery(configPath, profile, flowID, endTimeStr string) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	var end *time.Time
	if endTimeStr != "" {
		t, err := time.Parse(time.RFC3339, endTimeStr)
		if err != nil {
			log.Fatalf("Invalid end time format: %v", err)
		}
		end = &t
	}

	q, err := query.NewClickHouseQuerier(cfg.API.ClickHouse)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer q.Close()
	log.Println("Successfully connected to ClickHouse.")

	ctx := context.Background()
	if flowID != "" {
		if profile == "" {
			profile = cfg.Engine.Profile
		}
		rows, err := q.TraceFlow(ctx, profile, flowID, end)
		if err != nil {
			log.Fatalf("Error executing query: %v", err)
		}
		if len(rows) == 0 {
			log.Println("No data found for the specified criteria.")
		}
		for _, row := range rows {
			fmt.Printf("%v  %v\n", row["SnapshotTime"], row)
		}
		return
	}

	summaries, err := q.Summaries(ctx, profile, end)
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}
	log.Println("--- Profile Summaries (Direct) ---")
	if len(summaries) == 0 {
		log.Println("No data found for the specified criteria.")
	}
	for _, s := range summaries {
		fmt.Printf("Profile: %s\n", s.Profile)
		fmt.Printf("  Snapshots: %d\n", s.Snapshots)
		fmt.Printf("  Rows: %d\n", s.Rows)
		fmt.Printf("  LastSnapshot: %s\n", s.LastSnapshot.Format(time.RFC3339))
		fmt.Println("---------------------")
	}
}
