// Command staticlint runs the project's static analysis in one
// multichecker binary: selected go/analysis passes, ineffassign, nilerr,
// the noosexit analyzer and the staticcheck/simple/stylecheck checks
// enabled in config.json.
//
// config.json is looked up next to the binary unless STATICLINT_CONFIG
// points elsewhere:
//
//	{"checks": ["SA1000", "SA4006", "S1002", "ST1005"]}
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gordonklaus/ineffassign/pkg/ineffassign"
	"github.com/gostaticanalysis/nilerr"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/multichecker"
	"golang.org/x/tools/go/analysis/passes/copylock"
	"golang.org/x/tools/go/analysis/passes/loopclosure"
	"golang.org/x/tools/go/analysis/passes/lostcancel"
	"golang.org/x/tools/go/analysis/passes/printf"
	"golang.org/x/tools/go/analysis/passes/structtag"
	"golang.org/x/tools/go/analysis/passes/unmarshal"
	"golang.org/x/tools/go/analysis/passes/unreachable"
	"honnef.co/go/tools/analysis/lint"
	"honnef.co/go/tools/simple"
	"honnef.co/go/tools/staticcheck"
	"honnef.co/go/tools/stylecheck"

	"github.com/patric-chuzhbe/userdir/cmd/staticlint/noosexit"
)

const defaultConfigName = `config.json`

// ConfigData lists the staticcheck-family checks to enable, e.g. "SA4010".
type ConfigData struct {
	Checks []string `json:"checks"`
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	multichecker.Main(analyzers(cfg)...)
}

func loadConfig() (ConfigData, error) {
	path := os.Getenv("STATICLINT_CONFIG")
	if path == "" {
		executable, err := os.Executable()
		if err != nil {
			return ConfigData{}, err
		}
		path = filepath.Join(filepath.Dir(executable), defaultConfigName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ConfigData{}, fmt.Errorf("in cmd/staticlint/main.go/loadConfig(): error while `os.ReadFile()` calling: %w", err)
	}

	var cfg ConfigData
	if err := json.Unmarshal(data, &cfg); err != nil {
		return ConfigData{}, fmt.Errorf("in cmd/staticlint/main.go/loadConfig(): error while `json.Unmarshal()` calling: %w", err)
	}

	return cfg, nil
}

func analyzers(cfg ConfigData) []*analysis.Analyzer {
	checks := []*analysis.Analyzer{
		copylock.Analyzer,
		loopclosure.Analyzer,
		lostcancel.Analyzer,
		printf.Analyzer,
		structtag.Analyzer,
		unmarshal.Analyzer,
		unreachable.Analyzer,

		ineffassign.Analyzer,
		nilerr.Analyzer,

		noosexit.Analyzer,
	}

	enabled := make(map[string]bool, len(cfg.Checks))
	for _, name := range cfg.Checks {
		enabled[name] = true
	}

	for _, family := range [][]*lint.Analyzer{staticcheck.Analyzers, simple.Analyzers, stylecheck.Analyzers} {
		for _, v := range family {
			if enabled[v.Analyzer.Name] {
				checks = append(checks, v.Analyzer)
			}
		}
	}

	return checks
}
