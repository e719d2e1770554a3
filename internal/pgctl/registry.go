package pgctl

import (
	"sync"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// Dialer opens a Conn against a connection string. A real dialer lives in
// a driver package this module never imports — direct protocol/connection
// management is out of scope per the package doc — and registers itself
// with Register, the same way a database/sql driver registers against a
// name instead of the generic package importing it directly.
type Dialer func(dsn string) (Conn, error)

var (
	mu                sync.Mutex
	dialers           = map[string]Dialer{}
	controlFileReader ControlFileReader
)

// Register binds name to dial. Driver packages call this from an init
// function; name is then passed to Open.
func Register(name string, dial Dialer) {
	mu.Lock()
	defer mu.Unlock()
	dialers[name] = dial
}

// Open resolves name to a registered Dialer and dials dsn. It fails with
// KindPGConnect, not a panic, when no driver of that name was linked in —
// a CLI built without a driver package can still run show/validate/delete,
// which never call Open.
func Open(name, dsn string) (Conn, error) {
	mu.Lock()
	dial, ok := dialers[name]
	mu.Unlock()
	if !ok {
		return nil, rmanerr.New(rmanerr.KindPGConnect, "no pgctl driver registered under %q", name).
			WithHint("link a driver package that calls pgctl.Register in its init function")
	}
	conn, err := dial(dsn)
	if err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindPGConnect, "connecting via %q driver", name)
	}
	return conn, nil
}

// RegisterControlFileReader binds the cluster control-file parser a
// driver package supplies; pg_control's binary layout is a
// database-internal detail this module never parses itself.
func RegisterControlFileReader(r ControlFileReader) {
	mu.Lock()
	defer mu.Unlock()
	controlFileReader = r
}

// ReadControlFile dispatches to the registered reader.
func ReadControlFile(pgdataDir string) (ControlFile, error) {
	mu.Lock()
	r := controlFileReader
	mu.Unlock()
	if r == nil {
		return ControlFile{}, rmanerr.New(rmanerr.KindSystem, "no control file reader registered").
			WithHint("link a driver package that calls pgctl.RegisterControlFileReader in its init function")
	}
	return r(pgdataDir)
}
