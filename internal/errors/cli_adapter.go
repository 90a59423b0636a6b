package errors

import (
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
// Exit codes stay within the 0-3 range shared with the health command so that
// cron/systemd wrappers can treat any takops invocation uniformly.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if oe, ok := err.(*OpsError); ok {
		return a.exitCodeFromOps(oe)
	}

	return 1
}

// exitCodeFromOps maps OpsError categories onto the 0-3 exit surface.
func (a *CLIErrorAdapter) exitCodeFromOps(err *OpsError) int {
	switch err.Category {
	case CategoryValidation, CategoryConfig:
		return 2 // Invalid usage or configuration
	case CategoryInternal:
		return 3 // Unknown/internal failure
	default:
		return 1 // External tool or runtime failure
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if oe, ok := err.(*OpsError); ok {
		return a.formatOps(oe)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatOps formats an OpsError for display.
func (a *CLIErrorAdapter) formatOps(err *OpsError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation:
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if oe, ok := err.(*OpsError); ok {
		return oe.Category == CategoryInternal ||
			oe.Category == CategoryRuntime ||
			oe.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if oe, ok := err.(*OpsError); ok {
		level := a.slogLevelFromSeverity(oe.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(oe.Category)),
		}
		if oe.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(nil, level, oe.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromSeverity converts OpsError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
