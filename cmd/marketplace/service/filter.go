package service

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/healthchain/marketplace/common/ledger"
)

const maxCachedFilters = 256

// DatasetFilter evaluates listing filters written in CEL
// (Common Expression Language), for example
//
//	price < 0.5 && metadata.category == "cardiology"
type DatasetFilter struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewDatasetFilter creates a filter with an empty program cache
func NewDatasetFilter() (*DatasetFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("price", cel.DoubleType),
		cel.Variable("provider", cel.StringType),
		cel.Variable("version", cel.IntType),
		cel.Variable("licenseTerms", cel.StringType),
		cel.Variable("metadata", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return &DatasetFilter{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile returns the cached program for expr, compiling it on first use.
// Expressions must evaluate to a boolean.
func (f *DatasetFilter) Compile(expr string) (cel.Program, error) {
	f.mu.RLock()
	prg, ok := f.cache[expr]
	f.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := f.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", ast.OutputType())
	}
	prg, err := f.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	f.mu.Lock()
	if len(f.cache) >= maxCachedFilters {
		f.cache = make(map[string]cel.Program)
	}
	f.cache[expr] = prg
	f.mu.Unlock()

	return prg, nil
}

// Match evaluates prg against one dataset. Evaluation errors, such as a
// missing metadata key, count as no match.
func (f *DatasetFilter) Match(prg cel.Program, d ledger.Dataset) bool {
	out, _, err := prg.Eval(filterVars(d))
	if err != nil {
		return false
	}
	result, ok := out.Value().(bool)
	return ok && result
}

// CacheSize returns the number of cached expressions
func (f *DatasetFilter) CacheSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.cache)
}

func filterVars(d ledger.Dataset) map[string]interface{} {
	price, _ := strconv.ParseFloat(d.Price(), 64)
	return map[string]interface{}{
		"price":        price,
		"provider":     d.Provider,
		"version":      int64(d.Version),
		"licenseTerms": d.LicenseTerms,
		"metadata":     parseEnvelope(d.Metadata).object(),
	}
}
