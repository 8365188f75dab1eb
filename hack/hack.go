package hack

import (
	_ "embed"
)

// SystemdUnitTemplate is the systemd unit installed by "drip install".
// "/path/to/drip" is replaced with the absolute path of the binary.
//
//go:embed drip.service
var SystemdUnitTemplate string
