package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/validate"
)

// runValidate implements the supplemented `validate` verb (§12): re-check
// every manifested file of each matching OK backup against disk, printing
// a summary and leaving untouched backups alone (the testable property
// "validate on an untouched OK backup leaves status = OK").
func runValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	var catalogRoot string
	fs.StringVar(&catalogRoot, "B", "", "catalog (backup) directory")
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing validate flags")
	}
	if catalogRoot == "" {
		return rmanerr.New(rmanerr.KindArgs, "validate requires -B catalog-path")
	}

	l := catalog.Layout{Root: catalogRoot}
	r := catalog.TimeRange{}
	if rest := fs.Args(); len(rest) > 0 {
		var err error
		r, err = catalog.ParseDATERange(rest)
		if err != nil {
			return err
		}
	}

	records, err := l.List(r)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "listing catalog")
	}
	if len(records) == 0 {
		return rmanerr.New(rmanerr.KindNoBackup, "no backup matches the given range")
	}

	for _, rec := range records {
		res, err := validate.Validate(l, rec)
		if err != nil {
			return err
		}
		if len(res.Mismatches) == 0 {
			fmt.Fprintf(os.Stdout, "%s: OK (%d files checked)\n", rec.Key(), res.Checked)
			continue
		}
		fmt.Fprintf(os.Stdout, "%s: CORRUPT (%d/%d files mismatched)\n", rec.Key(), len(res.Mismatches), res.Checked)
		for _, m := range res.Mismatches {
			fmt.Fprintf(os.Stdout, "  %s\n", m)
		}
	}
	return nil
}
