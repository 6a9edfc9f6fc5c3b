package cli

import (
	"github.com/spf13/cobra"
)

// GlobalFlags are persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
	Verbose    bool
	JSON       bool
}

func (f *GlobalFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&f.ConfigPath, "config", "c", "config.yaml", "Path to the YAML config file (falls back to environment variables)")
	cmd.PersistentFlags().BoolVarP(&f.Verbose, "verbose", "v", false, "Debug logging")
	cmd.PersistentFlags().BoolVar(&f.JSON, "json", false, "Print results as JSON")
}

// WindowFlags select an inclusive YYYY-MM-DD date window
type WindowFlags struct {
	From string
	To   string
}

func (f *WindowFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.From, "from", "", "Start date YYYY-MM-DD (default 2020-01-01)")
	cmd.Flags().StringVar(&f.To, "to", "", "End date YYYY-MM-DD (default yesterday)")
}

// LinesFlags are the flags of the lines command
type LinesFlags struct {
	Source     string
	Limit      int
	AllColumns bool
	Filters    map[string]string
	Format     string
	Output     string
}

func (f *LinesFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Source, "source", "vista", "Line source: vista or procesada")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "Row limit (0 = source default)")
	cmd.Flags().BoolVar(&f.AllColumns, "all-columns", false, "Select every column instead of the safe projection")
	cmd.Flags().StringToStringVar(&f.Filters, "filter", nil, "Source filter as name=value (repeatable)")
	cmd.Flags().StringVar(&f.Format, "format", "json", "Output format: json, csv or xlsx")
	cmd.Flags().StringVarP(&f.Output, "output", "o", "", "Output file (default stdout for json, a generated name otherwise)")
}

// LogsFlags filter and page the audit log
type LogsFlags struct {
	SalesID    string
	ActionType string
	Kind       string
	Limit      int
	Offset     int
}

func (f *LogsFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.SalesID, "sales-id", "", "Sales order substring")
	cmd.Flags().StringVar(&f.ActionType, "action-type", "", "sql or rollback-from-log")
	cmd.Flags().StringVar(&f.Kind, "kind", "", "insert or update")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Page size (1-200)")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "Rows to skip")
}
