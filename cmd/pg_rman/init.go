package main

import (
	"flag"
	"os"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// runInit creates a fresh catalog directory: the reserved subdirectories
// and an empty pg_rman.ini, ready for backup's Preflight to bind a system
// identifier into on the first run against this catalog.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	var catalogRoot, pgdata string
	commonFlags(fs, &catalogRoot, &pgdata)
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing init flags")
	}
	if catalogRoot == "" {
		return rmanerr.New(rmanerr.KindArgs, "init requires -B catalog-path")
	}

	l := catalog.Layout{Root: catalogRoot}
	for _, dir := range []string{l.Root, l.TimelineHistDir(), l.RestoreStagingDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", dir)
		}
	}
	if _, err := os.Stat(l.LockFile()); os.IsNotExist(err) {
		if err := os.WriteFile(l.LockFile(), nil, 0644); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "creating %s", l.LockFile())
		}
	}
	return nil
}
