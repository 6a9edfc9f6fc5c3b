// Package cli implements the recon command tree.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/erpsync/salesline-reconciler/internal/domain/queries"
	"github.com/erpsync/salesline-reconciler/internal/export"
	"github.com/erpsync/salesline-reconciler/internal/infrastructure/audit"
)

// AppFactory builds the runtime for a command. Tests substitute a fake.
type AppFactory func(configPath string, verbose bool) (*App, error)

// NewRootCommand builds the recon command tree.
func NewRootCommand(newApp AppFactory) *cobra.Command {
	if newApp == nil {
		newApp = NewApp
	}
	var global GlobalFlags

	root := &cobra.Command{
		Use:           "recon",
		Short:         "Reconcile ERP sales lines against the Snowflake warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	global.bind(root)

	// withApp wires an App around a command body and closes it afterwards.
	withApp := func(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			app, err := newApp(global.ConfigPath, global.Verbose)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					app.Logger.Warn("failed to close resources", "error", err)
				}
			}()
			return run(cmd, args, app)
		}
	}

	root.AddCommand(
		newServeCommand(withApp),
		newReconcileCommand(withApp, &global),
		newCorrectionsCommand(withApp, &global),
		newChannelsCommand(withApp, &global),
		newMismatchesCommand(withApp, &global),
		newLinesCommand(withApp),
		newLogsCommand(withApp, &global),
		newRollbackCommand(withApp, &global),
	)
	return root
}

type wrapFunc func(run func(cmd *cobra.Command, args []string, app *App) error) func(*cobra.Command, []string) error

func newServeCommand(withApp wrapFunc) *cobra.Command {
	var flags ServeFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			return RunServe(app, flags)
		}),
	}
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 0, "Port to listen on (default from config)")
	return cmd
}

func newReconcileCommand(withApp wrapFunc, global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <salesId>",
		Short: "Compare one sales order line by line",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			report, err := app.Service.Analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if global.JSON {
				return WriteJSON(cmd.OutOrStdout(), report)
			}
			PrintReport(cmd.OutOrStdout(), report)
			return nil
		}),
	}
}

func newCorrectionsCommand(withApp wrapFunc, global *GlobalFlags) *cobra.Command {
	var (
		apply      bool
		executedBy string
	)
	cmd := &cobra.Command{
		Use:   "corrections <salesId>",
		Short: "Generate INSERT/UPDATE statements that repair the warehouse",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			out := cmd.OutOrStdout()
			bundle, err := app.Service.Corrections(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if global.JSON {
				if err := WriteJSON(out, bundle); err != nil {
					return err
				}
			} else {
				PrintCorrections(out, bundle)
			}
			if !apply {
				return nil
			}

			for _, st := range bundle.Actionable() {
				res, err := app.Service.ExecuteStatement(cmd.Context(), st, executedBy)
				if err != nil {
					return fmt.Errorf("line %d %s: %w", st.LineNumber, st.Kind, err)
				}
				fmt.Fprintf(out, "applied %s for line %d (log %d)\n", st.Kind, st.LineNumber, res.LogID)
			}
			return nil
		}),
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Execute every actionable statement and record it in the audit log")
	cmd.Flags().StringVar(&executedBy, "executed-by", "cli", "Executor recorded in the audit log")
	return cmd
}

func newChannelsCommand(withApp wrapFunc, global *GlobalFlags) *cobra.Command {
	var window WindowFlags
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Compare BASE and VIEW totals per channel",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			result, err := app.Service.ChannelComparison(cmd.Context(), window.From, window.To)
			if err != nil {
				return err
			}
			if global.JSON {
				return WriteJSON(cmd.OutOrStdout(), result)
			}
			PrintAggregate(cmd.OutOrStdout(), result)
			return nil
		}),
	}
	window.bind(cmd)
	return cmd
}

func newMismatchesCommand(withApp wrapFunc, global *GlobalFlags) *cobra.Command {
	var (
		window    WindowFlags
		tolerance float64
	)
	cmd := &cobra.Command{
		Use:   "mismatches",
		Short: "List orders whose BASE and VIEW totals disagree",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			var tol *float64
			if cmd.Flags().Changed("tolerance") {
				tol = &tolerance
			}
			result, err := app.Service.OrderMismatches(cmd.Context(), window.From, window.To, tol)
			if err != nil {
				return err
			}
			if global.JSON {
				return WriteJSON(cmd.OutOrStdout(), result)
			}
			PrintAggregate(cmd.OutOrStdout(), result)
			return nil
		}),
	}
	window.bind(cmd)
	cmd.Flags().Float64Var(&tolerance, "tolerance", 0, "Absolute amount tolerance (default from config)")
	return cmd
}

func newLinesCommand(withApp wrapFunc) *cobra.Command {
	var flags LinesFlags
	cmd := &cobra.Command{
		Use:   "lines",
		Short: "Download sales lines from the view or the processed table",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			format, err := export.ParseFormat(flags.Format)
			if err != nil {
				return err
			}
			result, err := app.Service.DownloadLines(cmd.Context(), queries.LineDownloadRequest{
				Source:            flags.Source,
				Limit:             flags.Limit,
				IncludeAllColumns: flags.AllColumns,
				Filters:           flags.Filters,
			})
			if err != nil {
				return err
			}

			if format == export.FormatJSON && flags.Output == "" {
				return WriteJSON(cmd.OutOrStdout(), result)
			}

			path := flags.Output
			if path == "" {
				path = export.Filename(string(result.Metadata.Source), format, time.Now())
			}
			f, err := os.Create(filepath.Clean(path))
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer func() { _ = f.Close() }()

			switch format {
			case export.FormatCSV:
				err = export.WriteCSV(f, result.Columns, result.Rows)
			case export.FormatXLSX:
				err = export.WriteXLSX(f, "", result.Columns, result.Rows)
			default:
				err = WriteJSON(f, result)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s (query %d ms)\n", result.Count, path, result.Timings.QueryMs)
			return f.Close()
		}),
	}
	flags.bind(cmd)
	return cmd
}

func newLogsCommand(withApp wrapFunc, global *GlobalFlags) *cobra.Command {
	var flags LogsFlags
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Browse the executed-statement audit log",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			page, err := app.Service.QueryLogs(cmd.Context(), audit.Filter{
				SalesID:    flags.SalesID,
				ActionType: flags.ActionType,
				Kind:       flags.Kind,
				Limit:      flags.Limit,
				Offset:     flags.Offset,
			})
			if err != nil {
				return err
			}
			if global.JSON {
				return WriteJSON(cmd.OutOrStdout(), page)
			}
			PrintLogPage(cmd.OutOrStdout(), page)
			return nil
		}),
	}
	flags.bind(cmd)
	return cmd
}

func newRollbackCommand(withApp wrapFunc, global *GlobalFlags) *cobra.Command {
	var executedBy string
	cmd := &cobra.Command{
		Use:   "rollback <logId>",
		Short: "Execute the rollback stored with an audit log entry",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, app *App) error {
			logID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid log id %q: %w", args[0], err)
			}
			result, err := app.Service.RollbackFromLog(cmd.Context(), logID, executedBy)
			if err != nil {
				return err
			}
			if global.JSON {
				return WriteJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back log %d: %d rows (new log %d)\n", result.SourceLogID, result.Rows, result.LogID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&executedBy, "executed-by", "cli", "Executor recorded in the audit log")
	return cmd
}
