package catalog

import (
	"path/filepath"
	"time"
)

// Layout names the fixed subpaths of a catalog root.
type Layout struct {
	Root string
}

func (l Layout) LockFile() string         { return filepath.Join(l.Root, "pg_rman.ini") }
func (l Layout) SystemIDFile() string     { return filepath.Join(l.Root, "system_identifier") }
func (l Layout) TimelineHistDir() string  { return filepath.Join(l.Root, "timeline_history") }
func (l Layout) RestoreStagingDir() string { return filepath.Join(l.Root, "backup") }
func (l Layout) SnapshotScript() string   { return filepath.Join(l.Root, "snapshot_script") }

// reservedSubdirs are the two well-known subdirectories of the catalog
// root that List must not mistake for a date-level directory.
var reservedSubdirs = map[string]bool{
	"backup":           true,
	"timeline_history": true,
}

// BackupDir returns the directory a record with the given start time
// lives in: <root>/YYYYMMDD/HHMMSS.
func (l Layout) BackupDir(start time.Time) string {
	u := start.UTC()
	return filepath.Join(l.Root, u.Format("20060102"), u.Format("150405"))
}

func (l Layout) BackupINI(start time.Time) string {
	return filepath.Join(l.BackupDir(start), "backup.ini")
}

func (l Layout) DatabaseDir(start time.Time) string { return filepath.Join(l.BackupDir(start), "database") }
func (l Layout) ArclogDir(start time.Time) string   { return filepath.Join(l.BackupDir(start), "arclog") }
func (l Layout) SrvlogDir(start time.Time) string   { return filepath.Join(l.BackupDir(start), "srvlog") }

func (l Layout) ManifestFile(start time.Time, stream string) string {
	return filepath.Join(l.BackupDir(start), "file_"+stream+".txt")
}

func (l Layout) MkdirsScript(start time.Time) string { return filepath.Join(l.BackupDir(start), "mkdirs.sh") }
func (l Layout) BackupLabel(start time.Time) string  { return filepath.Join(l.DatabaseDir(start), "backup_label") }
func (l Layout) TablespaceMap(start time.Time) string {
	return filepath.Join(l.DatabaseDir(start), "tablespace_map")
}
