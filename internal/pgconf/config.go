// Package pgconf loads the backup manager's configuration: command line
// overrides INI file overrides environment overrides compiled-in
// defaults, exactly as the CLI reference specifies. Every option doubles
// as an environment variable named after its upper-cased long flag, dashes
// turned to underscores.
package pgconf

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Cfg holds every option the backup/restore/retention operations consult.
// Zero values mean "unset"; Load resolves that across the four sources.
type Cfg struct {
	BackupPath string // the catalog root
	PGData     string

	BackupMode        string // FULL|INCREMENTAL|ARCHIVE
	WithServerlog      bool
	CompressData       bool
	FullBackupOnError  bool
	Smooth             bool // backup_start(fast = !Smooth)

	StandbyHost string
	StandbyPort string

	KeepGenerations int
	KeepDaysData    int
	KeepFilesArclog int
	KeepDaysArclog  int
	KeepFilesSrvlog int
	KeepDaysSrvlog  int

	ArchiveWaitTimeoutSec int
	HardCopy              bool

	RecoveryTargetTime      string
	RecoveryTargetXID       string
	RecoveryTargetInclusive bool
	RecoveryTargetTimeline  string
	RecoveryTargetAction    string
}

// Defaults mirrors the compiled-in fallback values; Load starts from this
// and layers environment, config file, then explicit overrides on top.
func Defaults() Cfg {
	return Cfg{
		BackupMode:            "INCREMENTAL",
		ArchiveWaitTimeoutSec: 10,
		KeepGenerations:       0, // 0 = unlimited
		RecoveryTargetTimeline: "latest",
	}
}

// Load applies environment variables over Defaults(), then
// <catalogRoot>/pg_rman.ini (if present), then overrides (normally the
// parsed CLI flags) on top.
func Load(catalogRoot string, overrides Cfg) (Cfg, error) {
	cfg := Defaults()
	applyEnv(&cfg)

	iniPath := catalogRoot + "/pg_rman.ini"
	if f, err := ini.Load(iniPath); err == nil {
		applyINI(&cfg, f)
	}

	applyOverrides(&cfg, overrides)
	return cfg, nil
}

func applyINI(cfg *Cfg, f *ini.File) {
	sec := f.Section("configuration")
	if !sec.HasKey("BACKUP_MODE") {
		sec = f.Section("")
	}
	setStr(&cfg.BackupMode, sec, "BACKUP_MODE")
	setBool(&cfg.WithServerlog, sec, "WITH_SERVERLOG")
	setBool(&cfg.CompressData, sec, "COMPRESS_DATA")
	setBool(&cfg.FullBackupOnError, sec, "FULL_BACKUP_ON_ERROR")
	setBool(&cfg.Smooth, sec, "SMOOTH_CHECKPOINT")
	setStr(&cfg.StandbyHost, sec, "STANDBY_HOST")
	setStr(&cfg.StandbyPort, sec, "STANDBY_PORT")
	setInt(&cfg.KeepGenerations, sec, "KEEP_DATA_GENERATIONS")
	setInt(&cfg.KeepDaysData, sec, "KEEP_DATA_DAYS")
	setInt(&cfg.KeepFilesArclog, sec, "KEEP_ARCLOG_FILES")
	setInt(&cfg.KeepDaysArclog, sec, "KEEP_ARCLOG_DAYS")
	setInt(&cfg.KeepFilesSrvlog, sec, "KEEP_SRVLOG_FILES")
	setInt(&cfg.KeepDaysSrvlog, sec, "KEEP_SRVLOG_DAYS")
	setInt(&cfg.ArchiveWaitTimeoutSec, sec, "ARCHIVE_TIMEOUT")
	setBool(&cfg.HardCopy, sec, "HARD_COPY")
}

func applyEnv(cfg *Cfg) {
	setEnvStr(&cfg.BackupMode, "BACKUP_MODE")
	setEnvBool(&cfg.WithServerlog, "WITH_SERVERLOG")
	setEnvBool(&cfg.CompressData, "COMPRESS_DATA")
	setEnvBool(&cfg.FullBackupOnError, "FULL_BACKUP_ON_ERROR")
	setEnvStr(&cfg.PGData, "PGDATA")
	setEnvStr(&cfg.BackupPath, "BACKUP_PATH")
	setEnvStr(&cfg.StandbyHost, "STANDBY_HOST")
	setEnvStr(&cfg.StandbyPort, "STANDBY_PORT")
	setEnvInt(&cfg.KeepGenerations, "KEEP_DATA_GENERATIONS")
	setEnvInt(&cfg.KeepDaysData, "KEEP_DATA_DAYS")
	setEnvInt(&cfg.ArchiveWaitTimeoutSec, "ARCHIVE_TIMEOUT")
	setEnvBool(&cfg.HardCopy, "HARD_COPY")
	setEnvBool(&cfg.Smooth, "SMOOTH_CHECKPOINT")
	setEnvInt(&cfg.KeepFilesArclog, "KEEP_ARCLOG_FILES")
	setEnvInt(&cfg.KeepDaysArclog, "KEEP_ARCLOG_DAYS")
	setEnvInt(&cfg.KeepFilesSrvlog, "KEEP_SRVLOG_FILES")
	setEnvInt(&cfg.KeepDaysSrvlog, "KEEP_SRVLOG_DAYS")
	setEnvStr(&cfg.RecoveryTargetTime, "RECOVERY_TARGET_TIME")
	setEnvStr(&cfg.RecoveryTargetXID, "RECOVERY_TARGET_XID")
	setEnvBool(&cfg.RecoveryTargetInclusive, "RECOVERY_TARGET_INCLUSIVE")
	setEnvStr(&cfg.RecoveryTargetTimeline, "RECOVERY_TARGET_TIMELINE")
	setEnvStr(&cfg.RecoveryTargetAction, "RECOVERY_TARGET_ACTION")
}

// applyOverrides merges any non-zero field of o on top of cfg; it is used
// to layer parsed CLI flags, which always win.
func applyOverrides(cfg *Cfg, o Cfg) {
	if o.BackupPath != "" {
		cfg.BackupPath = o.BackupPath
	}
	if o.PGData != "" {
		cfg.PGData = o.PGData
	}
	if o.BackupMode != "" {
		cfg.BackupMode = o.BackupMode
	}
	if o.RecoveryTargetTime != "" {
		cfg.RecoveryTargetTime = o.RecoveryTargetTime
	}
	if o.RecoveryTargetXID != "" {
		cfg.RecoveryTargetXID = o.RecoveryTargetXID
	}
	if o.RecoveryTargetTimeline != "" {
		cfg.RecoveryTargetTimeline = o.RecoveryTargetTimeline
	}
	if o.RecoveryTargetAction != "" {
		cfg.RecoveryTargetAction = o.RecoveryTargetAction
	}
	if o.RecoveryTargetInclusive {
		cfg.RecoveryTargetInclusive = true
	}
	if o.WithServerlog {
		cfg.WithServerlog = true
	}
	if o.CompressData {
		cfg.CompressData = true
	}
	if o.HardCopy {
		cfg.HardCopy = true
	}
	if o.Smooth {
		cfg.Smooth = true
	}
}

func setStr(dst *string, sec *ini.Section, key string) {
	if sec.HasKey(key) {
		*dst = sec.Key(key).String()
	}
}
func setBool(dst *bool, sec *ini.Section, key string) {
	if sec.HasKey(key) {
		*dst = sec.Key(key).MustBool(*dst)
	}
}
func setInt(dst *int, sec *ini.Section, key string) {
	if sec.HasKey(key) {
		*dst = sec.Key(key).MustInt(*dst)
	}
}

func setEnvStr(dst *string, name string) {
	if v, ok := os.LookupEnv(envName(name)); ok {
		*dst = v
	}
}
func setEnvBool(dst *bool, name string) {
	if v, ok := os.LookupEnv(envName(name)); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
func setEnvInt(dst *int, name string) {
	if v, ok := os.LookupEnv(envName(name)); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envName(longName string) string {
	return strings.ToUpper(strings.ReplaceAll(longName, "-", "_"))
}
