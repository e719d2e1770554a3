package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ossc-db/pg_rman/internal/backup"
	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/rmanlog"
)

// runDelete implements the supplemented `delete` verb (§12), mirroring
// original_source/delete.c: every backup with start_time <= the given
// DATE is a deletion candidate, scanned newest-first. Without --force,
// scanning stops keeping backups until it reaches the first OK FULL
// backup at-or-before DATE (the boundary still needed for PITR up to
// that point) — that boundary and everything after it in the scan is
// kept, everything strictly older than it is deleted. With --force the
// boundary check is skipped entirely and every candidate is deleted.
func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	var catalogRoot string
	var force bool
	fs.StringVar(&catalogRoot, "B", "", "catalog (backup) directory")
	fs.BoolVar(&force, "force", false, "delete without checking PITR necessity")
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing delete flags")
	}
	if catalogRoot == "" {
		return rmanerr.New(rmanerr.KindArgs, "delete requires -B catalog-path")
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return rmanerr.New(rmanerr.KindArgs, "delete range option not specified").
			WithHint("Please run with 'pg_rman delete DATE'.")
	}

	boundary, _, err := catalog.ParseDATE(rest[0])
	if err != nil {
		return err
	}

	if force {
		rmanlog.Warnf("using force option will make some of the remaining backups unusable")
	}

	l := catalog.Layout{Root: catalogRoot}
	lock, err := catalog.AcquireLock(l.LockFile())
	if err != nil {
		return err
	}
	defer lock.Release()

	records, err := l.List(catalog.TimeRange{})
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog")
	}

	foundBoundary := false
	for _, rec := range records {
		if rec.StartTime.After(boundary) {
			continue
		}
		if !force && !foundBoundary {
			if rec.Status == catalog.StatusOK {
				if rec.Mode >= catalog.ModeFull {
					foundBoundary = true
				}
				fmt.Fprintf(os.Stdout, "keeping %s: necessary for recovery\n", rec.Key())
				continue
			}
			fmt.Fprintf(os.Stdout, "keeping %s: necessary for recovery\n", rec.Key())
			continue
		}
		if err := backup.Delete(l, rec); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "deleted %s\n", rec.Key())
	}
	return nil
}
