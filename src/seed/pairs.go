// Package seed loads pair settings and parameters from a YAML file into the database.
package seed

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"breakoutexecutor/src/model"
	"breakoutexecutor/src/repository"
)

// File is the layout of a pairs file:
//
//	pairs:
//	  - symbol: BTC/USDT
//	    enabled: true
//	    leverage: 10
//	    tp_percent: 2
//	    sl_percent: 1
//	    cancel_after: 60
//	parameters:
//	  risk_per_trade: "5"
type File struct {
	Pairs      []model.PairConfig `yaml:"pairs"`
	Parameters map[string]string  `yaml:"parameters"`
}

func LoadPairsFile(filename string) (*File, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filename, err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode reads a pairs file and validates every entry.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode pairs file: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Pairs))
	for i, p := range f.Pairs {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("pair #%d: %w", i+1, err)
		}
		if _, dup := seen[p.Symbol]; dup {
			return nil, fmt.Errorf("pair #%d: duplicate symbol %s", i+1, p.Symbol)
		}
		seen[p.Symbol] = struct{}{}
	}
	return &f, nil
}

// Apply upserts the pairs in file order, then the parameters.
func Apply(ctx context.Context, f *File, pairs *repository.PairRepository, params *repository.ParameterRepository) error {
	for i := range f.Pairs {
		if err := pairs.Upsert(ctx, &f.Pairs[i]); err != nil {
			return fmt.Errorf("upsert pair %s: %w", f.Pairs[i].Symbol, err)
		}
	}

	keys := make([]string, 0, len(f.Parameters))
	for k := range f.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := params.Set(ctx, k, f.Parameters[k]); err != nil {
			return fmt.Errorf("set parameter %s: %w", k, err)
		}
	}

	logger.WithFields(logger.Fields{
		"pairs":      len(f.Pairs),
		"parameters": len(keys),
	}).Info("Seed applied")
	return nil
}
