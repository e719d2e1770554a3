package main

import (
	"flag"
	"os"

	"github.com/ossc-db/pg_rman/internal/backup"
	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// runPurge implements the `purge` verb: remove the on-disk directory of
// every DELETED record (and any date directory left empty by that), a
// no-op the second time it runs since nothing stays DELETED afterward.
func runPurge(args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	var catalogRoot string
	fs.StringVar(&catalogRoot, "B", "", "catalog (backup) directory")
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing purge flags")
	}
	if catalogRoot == "" {
		return rmanerr.New(rmanerr.KindArgs, "purge requires -B catalog-path")
	}

	l := catalog.Layout{Root: catalogRoot}
	lock, err := catalog.AcquireLock(l.LockFile())
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := backup.Purge(l); err != nil {
		return err
	}
	os.Stdout.WriteString("purge done\n")
	return nil
}
