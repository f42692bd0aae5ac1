package cmd

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"go.uber.org/zap"

	errwrap "github.com/moltpilot/moltpilot/internal/errors"
	"github.com/moltpilot/moltpilot/internal/observability"
)

// ExitWithCode logs msg with the exit code metadata from the foundry catalog
// and exits. logger may be nil for failures before logger initialization.
func ExitWithCode(logger observability.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		os.Exit(int(exitCode))
	}

	if logger == nil {
		writeFatal(msg, err)
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if envelope.Context != nil {
			fields = append(fields, zap.Any("error_context", envelope.Context))
		}
		if original, ok := envelope.Original.(error); ok && original != nil {
			err = original
		}
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	logger.Error(msg, fields...)
	os.Exit(info.Code)
}

// ExitWithCodeStderr is ExitWithCode without a logger.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	ExitWithCode(nil, exitCode, msg, err)
}

// HandleError maps a command error to its exit code, logs it, and exits.
// Called by main when Execute returns an error.
func HandleError(err error) {
	if err == nil {
		return
	}

	var logger observability.Logger
	if observability.CLILogger != nil {
		logger = observability.CLILogger
	}
	ExitWithCode(logger, errwrap.ExitCodeFor(err), failureMessage(err), err)
}

// failureMessage is the one-line summary shown for a failed command.
func failureMessage(err error) string {
	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		if original, ok := envelope.Original.(error); ok && original != nil {
			return envelope.Message + ": " + original.Error()
		}
		if wrapped, ok := envelope.Context["wrapped_error"].(string); ok && wrapped != "" {
			return envelope.Message + ": " + wrapped
		}
		return envelope.Message
	}
	return err.Error()
}

func writeFatal(msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope) && envelope != nil:
		fmt.Fprintf(os.Stderr, "FATAL: %s [%s]: %s (correlation: %s)\n",
			msg, envelope.Code, envelope.Message, envelope.CorrelationID)
	default:
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	}
}
