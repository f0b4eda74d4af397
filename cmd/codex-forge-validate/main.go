// Command codex-forge-validate runs the final validation gate against a
// pipeline's terminal structured document: whole-document JSON Schema
// conformance plus the structural and reachability checks that schema
// alone cannot express.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/copperdogma/codex-forge-sub006/internal/schema"
	"github.com/copperdogma/codex-forge-sub006/internal/validate"
)

func configureLogger(dev bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if dev {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func main() {
	docPath := flag.String("doc", "", "path to the terminal structured document to validate (required)")
	schemaPath := flag.String("schema", "", "path to a JSON Schema document overriding the built-in gamebook schema")
	reportPath := flag.String("report", "", "path to write the structured JSON report; defaults to <doc>.report.json")
	dev := flag.Bool("dev", false, "use text log format (default is JSON)")
	flag.Parse()

	logger := configureLogger(*dev)

	if *docPath == "" {
		logger.Error("--doc is required")
		os.Exit(2)
	}

	docSchema, err := resolveSchema(*schemaPath)
	if err != nil {
		logger.Error("failed to load document schema", "error", err)
		os.Exit(2)
	}

	raw, err := os.ReadFile(*docPath)
	if err != nil {
		logger.Error("failed to read document", "path", *docPath, "error", err)
		os.Exit(2)
	}

	report, err := validate.Run(docSchema, raw)
	if err != nil {
		logger.Error("validation gate failed to run", "path", *docPath, "error", err)
		os.Exit(2)
	}

	fmt.Print(report.RenderText())

	out := *reportPath
	if out == "" {
		out = *docPath + ".report.json"
	}
	if err := report.WriteJSON(out); err != nil {
		logger.Error("failed to write report", "path", out, "error", err)
		os.Exit(2)
	}

	os.Exit(report.ExitCode())
}

func resolveSchema(path string) (*schema.DocumentSchema, error) {
	if path == "" {
		return schema.GamebookJSONSchema()
	}
	return schema.LoadDocumentSchema("gamebook.v1", path)
}
