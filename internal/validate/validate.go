// Package validate implements the validate verb's re-check: comparing
// every manifested file in an OK backup against what's actually on disk
// in the catalog (size and crc32c), downgrading the record to CORRUPT on
// the first mismatch. It never touches the live cluster — it is a check
// on the backup's own copy, the thing retention and restore depend on
// being intact.
package validate

import (
	"os"
	"path/filepath"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/copier"
	"github.com/ossc-db/pg_rman/internal/manifest"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// Result reports what Validate found, so the caller (the show/validate CLI
// verb) can print a stream-by-stream summary.
type Result struct {
	Checked   int
	Mismatches []string
}

// Validate checks rec's database, arclog and srvlog manifests (whichever
// exist) against the files the backup actually wrote, reports every
// mismatch, and persists StatusCorrupt if there is any. A backup not in StatusOK is
// left untouched — there is nothing stable to validate in RUNNING, ERROR
// or DELETING state.
func Validate(l catalog.Layout, rec *catalog.Record) (Result, error) {
	var res Result
	if rec.Status != catalog.StatusOK {
		return res, nil
	}

	streams := []struct {
		name string
		dir  string
	}{
		{"database", l.DatabaseDir(rec.StartTime)},
		{"arclog", l.ArclogDir(rec.StartTime)},
		{"srvlog", l.SrvlogDir(rec.StartTime)},
	}

	for _, stream := range streams {
		path := l.ManifestFile(rec.StartTime, stream.name)
		mf, err := manifest.Read(path, "")
		if err != nil {
			if os.IsNotExist(rmanerr.Cause(err)) {
				continue
			}
			return res, err
		}
		for _, e := range mf.Entries {
			if e.Type != manifest.TypeDataFile && e.Type != manifest.TypeRegular {
				continue
			}
			if e.WriteSize == manifest.BytesInvalid {
				continue
			}
			res.Checked++
			full := filepath.Join(stream.dir, e.RelPath)
			info, statErr := os.Stat(full)
			if statErr != nil {
				res.Mismatches = append(res.Mismatches, stream.name+"/"+e.RelPath+": "+statErr.Error())
				continue
			}
			if info.Size() != e.WriteSize {
				res.Mismatches = append(res.Mismatches, stream.name+"/"+e.RelPath+": size mismatch")
				continue
			}
			crc, err := fileCRC32C(full)
			if err != nil {
				res.Mismatches = append(res.Mismatches, stream.name+"/"+e.RelPath+": "+err.Error())
				continue
			}
			if crc != e.CRC {
				res.Mismatches = append(res.Mismatches, stream.name+"/"+e.RelPath+": crc mismatch")
			}
		}
	}

	if len(res.Mismatches) > 0 {
		rec.Status = catalog.StatusCorrupt
		if err := catalog.WriteINI(l.BackupINI(rec.StartTime), rec); err != nil {
			return res, err
		}
	}
	return res, nil
}

func fileCRC32C(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, rmanerr.Wrap(err, rmanerr.KindSystem, "opening %s", path)
	}
	defer f.Close()

	crc := copier.NewCRC32C()
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			crc.Write(buf[:n])
		}
		if rerr != nil {
			break
		}
	}
	return crc.Sum32(), nil
}
