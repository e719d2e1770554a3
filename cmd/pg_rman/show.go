package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// runShow implements the supplemented `show` verb (§12): it prints one
// line per catalog record, newest first, limited to the DATE range when one
// is given; a leading "detail" token prints every field of the matching
// record(s) instead.
func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	var catalogRoot string
	fs.StringVar(&catalogRoot, "B", "", "catalog (backup) directory")
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing show flags")
	}
	if catalogRoot == "" {
		return rmanerr.New(rmanerr.KindArgs, "show requires -B catalog-path")
	}

	rest := fs.Args()
	detail := false
	if len(rest) > 0 && rest[0] == "detail" {
		detail = true
		rest = rest[1:]
	}

	l := catalog.Layout{Root: catalogRoot}
	r := catalog.TimeRange{}
	if len(rest) > 0 {
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

	if detail {
		for _, rec := range records {
			printDetail(rec)
		}
		return nil
	}

	fmt.Fprintln(os.Stdout, "START_TIME           MODE        STATUS    TLI  START_LSN    STOP_LSN")
	for _, rec := range records {
		fmt.Fprintf(os.Stdout, "%-20s %-11s %-9s %-4d %-12s %-12s\n",
			rec.StartTime.UTC().Format("2006-01-02 15:04:05"),
			rec.Mode, rec.Status, rec.Timeline, rec.StartLSN, rec.StopLSN)
	}
	return nil
}

func printDetail(rec *catalog.Record) {
	fmt.Fprintf(os.Stdout, "# %s\n", rec.Key())
	fmt.Fprintf(os.Stdout, "BACKUP_MODE = %s\n", rec.Mode)
	fmt.Fprintf(os.Stdout, "STATUS = %s\n", rec.Status)
	fmt.Fprintf(os.Stdout, "TIMELINEID = %d\n", rec.Timeline)
	fmt.Fprintf(os.Stdout, "START_LSN = %s\n", rec.StartLSN)
	fmt.Fprintf(os.Stdout, "STOP_LSN = %s\n", rec.StopLSN)
	fmt.Fprintf(os.Stdout, "START_TIME = %s\n", rec.StartTime.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(os.Stdout, "END_TIME = %s\n", rec.EndTime.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(os.Stdout, "RECOVERY_XID = %d\n", rec.RecoveryXID)
	fmt.Fprintf(os.Stdout, "RECOVERY_TIME = %s\n", rec.RecoveryTime.UTC().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(os.Stdout, "TOTAL_DATA_BYTES = %d\n", rec.Bytes.TotalData)
	fmt.Fprintf(os.Stdout, "WRITE_BYTES = %d\n\n", rec.Bytes.WriteBytes)
}
