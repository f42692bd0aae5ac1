package appidentityassets

import _ "embed"

// YAML is the embedded application identity, used when no external
// `.fulmen/app.yaml` is found next to the binary.
//
//go:embed app.yaml
var YAML []byte
