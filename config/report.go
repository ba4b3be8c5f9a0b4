package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// ReportConfig holds KPI report generator configuration. Values come from
// KPIREPORT_* environment variables; flags in main take final precedence.
type ReportConfig struct {
	InputFile  string `envconfig:"INPUT" default:"data/sales_data.csv"`
	OutputFile string `envconfig:"OUTPUT" default:"output/sales_kpi_report.html"`
	TopN       int    `envconfig:"TOP_N" default:"10"`
	Verbose    bool   `envconfig:"VERBOSE" default:"false"`
}

// LoadReportConfig builds a report configuration from the environment.
func LoadReportConfig() (*ReportConfig, error) {
	cfg := &ReportConfig{}
	if err := envconfig.Process("kpireport", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Validate ensures all report configuration values are coherent.
func (c *ReportConfig) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top N must be positive")
	}
	return nil
}
