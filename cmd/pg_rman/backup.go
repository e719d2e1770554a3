package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/ossc-db/pg_rman/internal/backup"
	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/pgconf"
	"github.com/ossc-db/pg_rman/internal/pgctl"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

func runBackup(args []string) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	var catalogRoot, pgdata string
	commonFlags(fs, &catalogRoot, &pgdata)
	overrides := backupOverrides(fs)
	if err := fs.Parse(args); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindArgs, "parsing backup flags")
	}
	overrides.BackupPath = catalogRoot
	overrides.PGData = pgdata

	if overrides.BackupPath == "" || overrides.PGData == "" {
		return rmanerr.New(rmanerr.KindArgs, "backup requires -B catalog-path and -D pgdata")
	}

	cfg, err := pgconf.Load(overrides.BackupPath, *overrides)
	if err != nil {
		return err
	}

	control, err := pgctl.ReadControlFile(cfg.PGData)
	if err != nil {
		return err
	}
	conn, err := pgctl.Open("postgres", cfg.PGData)
	if err != nil {
		return err
	}

	params := backup.Params{
		PGData:  cfg.PGData,
		Cfg:     cfg,
		Catalog: catalog.Layout{Root: cfg.BackupPath},
		Control: control,
		Conn:    conn,
		Now:     time.Now,
		Sleep:   time.Sleep,
	}
	if cfg.StandbyHost != "" {
		standby, serr := pgctl.Open("postgres", cfg.StandbyHost+":"+cfg.StandbyPort)
		if serr != nil {
			return serr
		}
		params.StandbyConn = standby
	}

	sess, err := backup.New(params)
	if err != nil {
		return err
	}
	if err := backup.Run(context.Background(), sess); err != nil {
		return err
	}
	os.Stdout.WriteString("backup " + sess.Record.Key() + " done\n")
	return nil
}
