// gophora discovery-service
//
// Discovers job and opportunity listings from public job APIs and HTML
// boards, classifies them for legitimacy, embeds them for semantic search
// and serves filtered queries and recommendations over HTTP.
//
// Background tasks (robfig/cron):
//   - primary      every PRIMARY_INTERVAL, all sources × SCRAPE_SKILLS
//   - entry_level  every ENTRY_INTERVAL, offset by ENTRY_OFFSET
//   - cleanup      CLEANUP_SPEC, deactivates listings older than RETENTION_DAYS
//
// Publishes EVENT_JOBS_INGESTED to Redis after every pass.
package main

import (
	"fmt"
	"os"
)

const version = "1.0.0"

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
