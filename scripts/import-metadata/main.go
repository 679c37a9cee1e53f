// import-metadata seeds the engine with enrichment documents from a YAML
// file by posting each table to the import endpoint.
//
// The seed file is a list of tables:
//
//	- catalog: prod
//	  schema: sales
//	  table: orders
//	  row_count: 1200000
//	  summary: One row per customer order.
//	  search_mode: analytics
//	  columns:
//	    - name: order_id
//	      data_type: bigint
//	      column_type: identifier
//	      cardinality: 1200000
//
// Usage: go run ./scripts/import-metadata -file seed.yaml [-engine http://localhost:8080]
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type seedColumn struct {
	Name           string   `yaml:"name" json:"name"`
	DataType       string   `yaml:"data_type" json:"data_type"`
	ColumnType     string   `yaml:"column_type" json:"column_type"`
	SemanticType   string   `yaml:"semantic_type" json:"semantic_type,omitempty"`
	Description    string   `yaml:"description" json:"description,omitempty"`
	Aliases        []string `yaml:"aliases" json:"aliases,omitempty"`
	Cardinality    int64    `yaml:"cardinality" json:"cardinality"`
	NullPercentage *float64 `yaml:"null_percentage" json:"null_percentage,omitempty"`
	SampleValues   []string `yaml:"sample_values" json:"sample_values,omitempty"`
	MinValue       *string  `yaml:"min_value" json:"min_value,omitempty"`
	MaxValue       *string  `yaml:"max_value" json:"max_value,omitempty"`
	AvgValue       *float64 `yaml:"avg_value" json:"avg_value,omitempty"`
}

type seedTable struct {
	Catalog            string       `yaml:"catalog"`
	Schema             string       `yaml:"schema"`
	Table              string       `yaml:"table"`
	RowCount           int64        `yaml:"row_count"`
	Summary            string       `yaml:"summary"`
	CustomInstructions string       `yaml:"custom_instructions"`
	SearchMode         string       `yaml:"search_mode"`
	Columns            []seedColumn `yaml:"columns"`
}

type importBody struct {
	RowCount           int64        `json:"row_count"`
	Summary            string       `json:"summary,omitempty"`
	CustomInstructions string       `json:"custom_instructions,omitempty"`
	SearchMode         string       `json:"search_mode,omitempty"`
	Columns            []seedColumn `json:"columns"`
}

func main() {
	file := flag.String("file", "", "YAML seed file (required)")
	engine := flag.String("engine", "http://localhost:8080", "Engine base URL")
	flag.Parse()

	if *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -file seed.yaml [-engine http://localhost:8080]\n", os.Args[0])
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read seed file: %v\n", err)
		os.Exit(1)
	}

	var tables []seedTable
	if err := yaml.Unmarshal(data, &tables); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse seed file: %v\n", err)
		os.Exit(1)
	}
	if len(tables) == 0 {
		fmt.Fprintln(os.Stderr, "Seed file contains no tables")
		os.Exit(1)
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	failures := 0
	for _, t := range tables {
		if err := importTable(client, *engine, t); err != nil {
			fmt.Fprintf(os.Stderr, "FAIL %s.%s.%s: %v\n", t.Catalog, t.Schema, t.Table, err)
			failures++
			continue
		}
		fmt.Printf("ok   %s.%s.%s (%d columns)\n", t.Catalog, t.Schema, t.Table, len(t.Columns))
	}

	fmt.Printf("\nImported %d/%d tables\n", len(tables)-failures, len(tables))
	if failures > 0 {
		os.Exit(1)
	}
}

func importTable(client *http.Client, engine string, t seedTable) error {
	if t.Catalog == "" || t.Schema == "" || t.Table == "" {
		return fmt.Errorf("catalog, schema and table are required")
	}

	body, err := json.Marshal(importBody{
		RowCount:           t.RowCount,
		Summary:            t.Summary,
		CustomInstructions: t.CustomInstructions,
		SearchMode:         t.SearchMode,
		Columns:            t.Columns,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/tables/%s/%s/%s/import", engine, t.Catalog, t.Schema, t.Table)
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
