package main

import (
	"flag"
	"os"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/pgconf"
	"github.com/ossc-db/pg_rman/internal/restore"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

func runRestore(args []string) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	var catalogRoot, pgdata string
	commonFlags(fs, &catalogRoot, &pgdata)
	overrides := restoreOverrides(fs)
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing restore flags")
	}
	if catalogRoot == "" || pgdata == "" {
		return rmanerr.New(rmanerr.KindArgs, "restore requires -B catalog-path and -D pgdata")
	}

	o := *overrides
	o.BackupPath, o.PGData = catalogRoot, pgdata
	cfg, err := pgconf.Load(catalogRoot, o)
	if err != nil {
		return err
	}

	target := restore.Target{
		Action:    cfg.RecoveryTargetAction,
		Inclusive: cfg.RecoveryTargetInclusive,
		Timeline:  cfg.RecoveryTargetTimeline,
	}
	if cfg.RecoveryTargetTime != "" {
		start, _, perr := catalog.ParseDATE(cfg.RecoveryTargetTime)
		if perr != nil {
			return perr
		}
		target.HasTime = true
		target.Time = start
	}
	if cfg.RecoveryTargetXID != "" {
		var xid uint32
		if _, err := fscanUint(cfg.RecoveryTargetXID, &xid); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindArgs, "malformed recovery_target_xid %q", cfg.RecoveryTargetXID)
		}
		target.HasXID = true
		target.XID = xid
	}

	plan, err := restore.Run(restore.Params{
		Catalog:  catalog.Layout{Root: cfg.BackupPath},
		PGData:   cfg.PGData,
		Target:   target,
		HardCopy: cfg.HardCopy,
	})
	if err != nil {
		return err
	}

	os.Stdout.WriteString("restored " + plan.Base.Key() + " plus " + itoa(len(plan.Chain)) + " incremental(s)\n")
	return nil
}

func fscanUint(s string, out *uint32) (int, error) {
	var v uint64
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n, rmanerr.New(rmanerr.KindArgs, "not a number: %q", s)
		}
		v = v*10 + uint64(r-'0')
		n++
	}
	*out = uint32(v)
	return n, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
