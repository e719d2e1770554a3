package catalog

import (
	"os"
	"strconv"
	"strings"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// ReadSystemIdentifier returns the identifier this catalog is bound to, or
// 0 if it is not bound yet (the first CheckSystemIdentifier binds it).
func (l Layout) ReadSystemIdentifier() (uint64, error) {
	data, err := os.ReadFile(l.SystemIDFile())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, rmanerr.Wrap(err, rmanerr.KindSystem, "reading %s", l.SystemIDFile())
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed system_identifier file")
	}
	return id, nil
}

// WriteSystemIdentifier binds the catalog to id; CheckSystemIdentifier
// calls it when the catalog is not bound yet.
func (l Layout) WriteSystemIdentifier(id uint64) error {
	return os.WriteFile(l.SystemIDFile(), []byte(strconv.FormatUint(id, 10)+"\n"), 0644)
}

// CheckSystemIdentifier is run by backup preflight: it binds an unbound
// catalog to clusterID and fails fatally on a mismatch, so this catalog
// never silently mixes backups from two different clusters.
func (l Layout) CheckSystemIdentifier(clusterID uint64) error {
	catalogID, err := l.ReadSystemIdentifier()
	if err != nil {
		return err
	}
	if catalogID == 0 {
		return l.WriteSystemIdentifier(clusterID)
	}
	if catalogID != clusterID {
		return rmanerr.New(rmanerr.KindPGIncompatible,
			"catalog %s is bound to system identifier %d, but the target cluster's is %d",
			l.Root, catalogID, clusterID).
			WithHint("run init against a fresh catalog directory for a different cluster")
	}
	return nil
}
