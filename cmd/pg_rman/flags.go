package main

import (
	"flag"

	"github.com/ossc-db/pg_rman/internal/pgconf"
)

// commonFlags registers the -B (catalog) and -D (pgdata) options every
// verb that touches a catalog or a cluster accepts.
func commonFlags(fs *flag.FlagSet, catalogRoot, pgdata *string) {
	fs.StringVar(catalogRoot, "B", "", "catalog (backup) directory")
	fs.StringVar(pgdata, "D", "", "pgdata directory")
}

func backupOverrides(fs *flag.FlagSet) *pgconf.Cfg {
	o := &pgconf.Cfg{}
	fs.StringVar(&o.BackupMode, "b", "", "backup mode: FULL, INCREMENTAL or ARCHIVE")
	fs.BoolVar(&o.WithServerlog, "with-serverlog", false, "also back up the server log stream")
	fs.BoolVar(&o.CompressData, "compress-data", false, "compress data-file and WAL streams")
	fs.BoolVar(&o.Smooth, "smooth-checkpoint", false, "request a smooth (non-fast) checkpoint at backup start")
	return o
}

func restoreOverrides(fs *flag.FlagSet) *pgconf.Cfg {
	o := &pgconf.Cfg{}
	fs.StringVar(&o.RecoveryTargetTime, "recovery-target-time", "", "recover to this timestamp")
	fs.StringVar(&o.RecoveryTargetXID, "recovery-target-xid", "", "recover to this transaction id")
	fs.BoolVar(&o.RecoveryTargetInclusive, "recovery-target-inclusive", false, "include the target transaction/timestamp")
	fs.StringVar(&o.RecoveryTargetTimeline, "recovery-target-timeline", "", "'latest' or a numeric timeline id")
	fs.StringVar(&o.RecoveryTargetAction, "recovery-target-action", "", "pause, promote or shutdown")
	fs.BoolVar(&o.HardCopy, "hard-copy", false, "hard-copy archived WAL instead of symlinking it")
	return o
}
