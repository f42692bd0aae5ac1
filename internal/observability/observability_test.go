package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func restoreLoggers(t *testing.T) {
	t.Helper()
	cli, server := CLILogger, ServerLogger
	t.Cleanup(func() {
		CLILogger, ServerLogger = cli, server
	})
}

func TestCoreLoggerPrefersServerLogger(t *testing.T) {
	restoreLoggers(t)

	CLILogger, ServerLogger = nil, nil
	require.NotNil(t, CoreLogger())
	CoreLogger().Info("discarded")

	InitCLILogger("moltpilot-test", false)
	require.NotNil(t, CLILogger)
	assert.Same(t, CLILogger, CoreLogger())

	InitServerLogger("moltpilot-test", "debug", "moltpilot")
	require.NotNil(t, ServerLogger)
	assert.Same(t, ServerLogger, CoreLogger())

	ServerLogger.Info("structured entry",
		zap.String("component", "test"),
		zap.Int("attempt", 1))
}

func TestLoggersSatisfyLoggerInterface(t *testing.T) {
	var _ Logger = zap.NewNop()

	logger, err := logging.NewCLI("interface-test")
	require.NoError(t, err)
	logger.SetLevel(logging.DEBUG)

	var core Logger = logger
	core.Debug("debug message", zap.String("mode", "verbose"))
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"trace":   "TRACE",
		"DEBUG":   "DEBUG",
		" info ":  "INFO",
		"warning": "WARN",
		"warn":    "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"loud":    "INFO",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, parseLogLevel(input), "input %q", input)
	}
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9191")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}

func TestEmbeddedCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
}
