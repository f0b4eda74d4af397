package progress

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TokenUsage mirrors the input/output token split a single LLM call
// consumed.
type TokenUsage struct {
	Input  int
	Output int
}

// CalculateCost prices a TokenUsage against per-million-token rates.
func CalculateCost(usage TokenUsage, inputPriceMtok, outputPriceMtok float64) float64 {
	inputCost := (float64(usage.Input) / 1_000_000.0) * inputPriceMtok
	outputCost := (float64(usage.Output) / 1_000_000.0) * outputPriceMtok
	return inputCost + outputCost
}

// ModelPrice is one model's per-million-token rates.
type ModelPrice struct {
	InputPerMtok  float64 `toml:"input_per_mtok"`
	OutputPerMtok float64 `toml:"output_per_mtok"`
}

// PriceSheet maps model name to its rates.
type PriceSheet map[string]ModelPrice

type priceSheetFile struct {
	Models map[string]ModelPrice `toml:"models"`
}

// LoadPriceSheet reads a TOML price sheet of the form:
//
//	[models."gpt-4o"]
//	input_per_mtok = 2.50
//	output_per_mtok = 10.00
func LoadPriceSheet(path string) (PriceSheet, error) {
	var doc priceSheetFile
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("progress: decode price sheet %s: %w", path, err)
	}
	return PriceSheet(doc.Models), nil
}

// LoadPriceSheetOrEmpty behaves like LoadPriceSheet but returns an empty
// sheet instead of an error when path does not exist, since a run with
// no price sheet configured should still produce a report with every
// model listed as unknown rather than fail outright.
func LoadPriceSheetOrEmpty(path string) (PriceSheet, error) {
	if path == "" {
		return PriceSheet{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return PriceSheet{}, nil
	}
	return LoadPriceSheet(path)
}
