package main

import (
	"Go2FlowMeter/internal/probe/persistent"
	"Go2FlowMeter/internal/writer"
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

func main() {
	archive := flag.Bool("archive", false, "Decode a probe packet archive instead of a rows.gob snapshot.")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Println("Usage: go run ./scripts/gobana [-archive] <gob_file>")
		os.Exit(1)
	}
	gobFile := flag.Arg(0)

	if *archive {
		records, err := persistent.ReadGob(gobFile)
		if err != nil {
			log.Fatalf("Failed to decode gob data: %v", err)
		}
		fmt.Printf("Decoded %d packet records:\n", len(records))
		for _, rec := range records {
			fmt.Print(persistent.FormatText(rec))
		}
		return
	}

	batch, err := writer.ReadGob(gobFile)
	if err != nil {
		log.Fatalf("Failed to decode gob data: %v", err)
	}
	fmt.Printf("Profile %s, %d rows:\n", batch.Profile, batch.Len())
	fmt.Println(strings.Join(batch.Header, ","))
	for _, row := range batch.Rows {
		fmt.Println(strings.Join(row, ","))
	}
}
