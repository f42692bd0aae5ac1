// Package appid resolves the application identity used for help text and
// diagnostics. An external `.fulmen/app.yaml` (or FULMEN_APP_IDENTITY_PATH)
// wins over the embedded copy.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/moltpilot/moltpilot/internal/assets/appidentity"
)

// Fallbacks used when no identity can be loaded at all.
const (
	DefaultBinaryName  = "moltpilot"
	DefaultEnvPrefix   = "MOLTPILOT_"
	DefaultDescription = "Rate-aware client and agent loop for the Moltbook social API"
)

func init() {
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the loaded identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// Summary is the subset of the identity the CLI displays.
type Summary struct {
	BinaryName  string
	EnvPrefix   string
	Description string
	Vendor      string
	// Err is set when the identity could not be loaded and fallbacks apply.
	Err error
}

// Describe loads the identity and fills any missing field with a fallback.
// It never fails.
func Describe(ctx context.Context) Summary {
	s := Summary{
		BinaryName:  DefaultBinaryName,
		EnvPrefix:   DefaultEnvPrefix,
		Description: DefaultDescription,
	}

	identity, err := Get(ctx)
	if err != nil {
		s.Err = err
		return s
	}
	if identity == nil {
		return s
	}
	if identity.BinaryName != "" {
		s.BinaryName = identity.BinaryName
	}
	if identity.EnvPrefix != "" {
		s.EnvPrefix = identity.EnvPrefix
	}
	if identity.Description != "" {
		s.Description = identity.Description
	}
	s.Vendor = identity.Vendor
	return s
}
