package catalog

import (
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"github.com/ossc-db/pg_rman/internal/rmanlog"
	"github.com/ossc-db/pg_rman/internal/xlog"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// WriteINI serializes rec into backup.ini's "# configuration" and
// "# result" sections. Unknown keys found on a later read are warned
// about, not rejected — this file only ever writes the keys it knows.
func WriteINI(path string, rec *Record) error {
	f := ini.Empty()

	cfg, _ := f.NewSection("configuration")
	setBool(cfg, "WITH_SERVERLOG", rec.WithServerlog)
	setBool(cfg, "COMPRESS_DATA", rec.CompressData)
	setBool(cfg, "FULL_BACKUP_ON_ERROR", rec.FullBackupOnError)

	res, _ := f.NewSection("result")
	res.Key("BACKUP_MODE").SetValue(rec.Mode.String())
	res.Key("TIMELINEID").SetValue(fmtUint(rec.Timeline))
	res.Key("START_LSN").SetValue(rec.StartLSN.String())
	res.Key("STOP_LSN").SetValue(rec.StopLSN.String())
	res.Key("START_TIME").SetValue(rec.StartTime.UTC().Format(timeLayout))
	if !rec.EndTime.IsZero() {
		res.Key("END_TIME").SetValue(rec.EndTime.UTC().Format(timeLayout))
	}
	if !rec.RecoveryTime.IsZero() {
		res.Key("RECOVERY_TIME").SetValue(rec.RecoveryTime.UTC().Format(timeLayout))
	}
	res.Key("RECOVERY_XID").SetValue(fmtUint(rec.RecoveryXID))
	res.Key("TOTAL_DATA_BYTES").SetValue(fmtInt(rec.Bytes.TotalData))
	res.Key("READ_DATA_BYTES").SetValue(fmtInt(rec.Bytes.ReadData))
	res.Key("READ_ARCLOG_BYTES").SetValue(fmtInt(rec.Bytes.ReadArclog))
	res.Key("READ_SRVLOG_BYTES").SetValue(fmtInt(rec.Bytes.ReadSrvlog))
	res.Key("WRITE_BYTES").SetValue(fmtInt(rec.Bytes.WriteBytes))
	res.Key("BLOCK_SIZE").SetValue(fmtInt(int64(rec.BlockSize)))
	res.Key("XLOG_BLOCK_SIZE").SetValue(fmtInt(int64(rec.WALBlockSize)))
	res.Key("STATUS").SetValue(rec.Status.String())

	if err := f.SaveTo(path); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", path)
	}
	return nil
}

// ReadINI parses a backup.ini. An unreadable file returns (nil, nil) — the
// caller treats a missing/unreadable directory as an empty catalog entry,
// not an error.
func ReadINI(path string) (*Record, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, nil
	}
	rec := &Record{}

	if cfg, err := f.GetSection("configuration"); err == nil {
		rec.WithServerlog = cfg.Key("WITH_SERVERLOG").MustBool(false)
		rec.CompressData = cfg.Key("COMPRESS_DATA").MustBool(false)
		rec.FullBackupOnError = cfg.Key("FULL_BACKUP_ON_ERROR").MustBool(false)
	}

	res, err := f.GetSection("result")
	if err != nil {
		return nil, nil
	}

	if mode, merr := ParseMode(res.Key("BACKUP_MODE").String()); merr == nil {
		rec.Mode = mode
	}
	rec.Timeline = uint32(res.Key("TIMELINEID").MustUint(0))
	if lsn, err := xlog.ParseLSN(res.Key("START_LSN").String()); err == nil {
		rec.StartLSN = lsn
	}
	if lsn, err := xlog.ParseLSN(res.Key("STOP_LSN").String()); err == nil {
		rec.StopLSN = lsn
	}
	rec.StartTime = parseTimeOrZero(res.Key("START_TIME").String())
	rec.EndTime = parseTimeOrZero(res.Key("END_TIME").String())
	rec.RecoveryTime = parseTimeOrZero(res.Key("RECOVERY_TIME").String())
	rec.RecoveryXID = uint32(res.Key("RECOVERY_XID").MustUint(0))
	rec.Bytes.TotalData = res.Key("TOTAL_DATA_BYTES").MustInt64(0)
	rec.Bytes.ReadData = res.Key("READ_DATA_BYTES").MustInt64(0)
	rec.Bytes.ReadArclog = res.Key("READ_ARCLOG_BYTES").MustInt64(0)
	rec.Bytes.ReadSrvlog = res.Key("READ_SRVLOG_BYTES").MustInt64(0)
	rec.Bytes.WriteBytes = res.Key("WRITE_BYTES").MustInt64(0)
	rec.BlockSize = res.Key("BLOCK_SIZE").MustInt(0)
	rec.WALBlockSize = res.Key("XLOG_BLOCK_SIZE").MustInt(0)
	rec.Status = ParseStatus(res.Key("STATUS").String())

	known := map[string]bool{}
	for _, k := range strings.Fields("WITH_SERVERLOG COMPRESS_DATA FULL_BACKUP_ON_ERROR BACKUP_MODE TIMELINEID START_LSN STOP_LSN START_TIME END_TIME RECOVERY_TIME RECOVERY_XID TOTAL_DATA_BYTES READ_DATA_BYTES READ_ARCLOG_BYTES READ_SRVLOG_BYTES WRITE_BYTES BLOCK_SIZE XLOG_BLOCK_SIZE STATUS") {
		known[k] = true
	}
	for _, sec := range f.Sections() {
		for _, k := range sec.Keys() {
			if !known[k.Name()] {
				rmanlog.Warnf("%s: ignoring unknown key %s", path, k.Name())
			}
		}
	}

	return rec, nil
}

func parseTimeOrZero(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func setBool(s *ini.Section, key string, v bool) {
	if v {
		s.Key(key).SetValue("true")
	} else {
		s.Key(key).SetValue("false")
	}
}

func fmtUint(v uint32) string { return fmtInt(int64(v)) }
func fmtInt(v int64) string   { return strconv.FormatInt(v, 10) }
