// Command schema-generator emits cmd/docs.gen.json, the structured
// documentation artifact served by `dvlogs docs`. It bundles the
// authoritative wire schema with a reflected view of the decoded record
// type, so ecosystem tooling sees both the producer contract and the Go
// shape it decodes into.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/grovetools/devlogs/internal/records"
	"github.com/invopop/jsonschema"
)

const (
	wireSchemaPath = "internal/records/records.schema.json"
	outputPath     = "cmd/docs.gen.json"
)

type docs struct {
	Tool        string             `json:"tool"`
	Description string             `json:"description"`
	WireSchema  json.RawMessage    `json:"wireSchema"`
	RecordType  *jsonschema.Schema `json:"recordType"`
}

func main() {
	wire, err := os.ReadFile(wireSchemaPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema-generator: %v\n", err)
		os.Exit(1)
	}

	reflector := &jsonschema.Reflector{DoNotReference: true}
	out := docs{
		Tool:        "dvlogs",
		Description: "Session-scoped development activity logs: ingestion, redaction, retention, and bounded aggregate reads.",
		WireSchema:  json.RawMessage(wire),
		RecordType:  reflector.Reflect(&records.Record{}),
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema-generator: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outputPath, append(data, '\n'), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "schema-generator: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", outputPath)
}
