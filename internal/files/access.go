package files

import (
	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
)

// accessTable holds the error raised by OPEN ... FOR mode ACCESS access;
// KindUnknown means the combination is legal. An omitted ACCESS clause is
// always legal. RANDOM files take any access.
var accessTable = [4][4]ioerr.Kind{
	device.Input: {
		device.Write:     ioerr.SyntaxError,
		device.ReadWrite: ioerr.SyntaxError,
	},
	device.Output: {
		device.Read:      ioerr.SyntaxError,
		device.ReadWrite: ioerr.SyntaxError,
	},
	device.Append: {
		device.Read:  ioerr.SyntaxError,
		device.Write: ioerr.PathFileAccessError,
	},
	device.Random: {},
}

// CheckAccess validates a FOR/ACCESS combination.
func CheckAccess(m device.Mode, a device.Access) error {
	if m < device.Input || m > device.Random || a < device.AccessDefault || a > device.ReadWrite {
		return ioerr.Op("OPEN", ioerr.SyntaxError)
	}
	if k := accessTable[m][a]; k != ioerr.KindUnknown {
		return ioerr.Op("OPEN", k)
	}
	return nil
}
