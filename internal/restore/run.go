package restore

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ossc-db/pg_rman/internal/catalog"
	"github.com/ossc-db/pg_rman/internal/rmanerr"
	"golang.org/x/sys/unix"
)

// Params is everything a restore run needs: the catalog to plan against,
// the destination cluster directory, the recovery target, and the live
// sources to stage before wiping the destination.
type Params struct {
	Catalog   catalog.Layout
	PGData    string
	PGConfDir string // defaults to PGData when empty
	ArclogDir string // where restore_command's cp reads from; defaults to <pgdata>/pg_xlog_archive

	Target   Target
	HardCopy bool

	LiveWALDir    string // "" disables online-WAL staging
	LiveSrvlogDir string
}

// Run executes the full staging order: refuse if the server looks alive,
// stage online logs, select a plan, wipe the destination only once the
// plan is known good, run mkdirs.sh, replay the chain, overlay archived
// WAL, restore staged online WAL, drop postmaster.pid, and emit recovery
// configuration.
func Run(p Params) (*Plan, error) {
	if p.PGConfDir == "" {
		p.PGConfDir = p.PGData
	}
	if p.ArclogDir == "" {
		p.ArclogDir = filepath.Join(p.PGData, "pg_xlog_archive")
	}

	running, err := serverIsRunning(p.PGData)
	if err != nil {
		return nil, err
	}
	if running {
		return nil, rmanerr.New(rmanerr.KindPGRunning, "refusing to restore: the target cluster appears to be running").
			WithHint("stop the server before restoring")
	}

	if err := StageOnlineLogs(p.Catalog, p.LiveWALDir, p.LiveSrvlogDir); err != nil {
		return nil, err
	}

	plan, err := BuildPlan(p.Catalog, p.Target)
	if err != nil {
		return nil, err
	}

	if err := WipeDestination(p.PGData); err != nil {
		return nil, err
	}
	if err := RunMkdirs(p.Catalog, plan.Base, p.PGData); err != nil {
		return nil, err
	}
	if err := RestoreChain(p.Catalog, plan, p.PGData); err != nil {
		return nil, err
	}
	if err := OverlayArclog(p.Catalog, plan, p.ArclogDir, p.HardCopy); err != nil {
		return nil, err
	}
	if err := RestoreStagedOnlineWAL(p.Catalog, p.PGData); err != nil {
		return nil, err
	}

	pidFile := filepath.Join(p.PGData, "postmaster.pid")
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "removing %s", pidFile)
	}

	if err := WriteRecoveryConfig(p.PGData, p.PGConfDir, p.ArclogDir, p.Target); err != nil {
		return nil, err
	}

	return plan, nil
}

// serverIsRunning implements the pid-file-broken/server-running check: the
// pid file's first line names a process; if that process still exists,
// the server is treated as running. A readable-but-stale pid file (the
// process is gone) is not an error.
func serverIsRunning(pgdata string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(pgdata, "postmaster.pid"))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, rmanerr.Wrap(err, rmanerr.KindSystem, "reading postmaster.pid")
	}
	lines := strings.SplitN(string(data), "\n", 2)
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return false, rmanerr.New(rmanerr.KindPidFileBroken, "malformed postmaster.pid").
			WithDetail("the first line of postmaster.pid must be a process id")
	}
	if err := unix.Kill(pid, 0); err == nil {
		return true, nil
	}
	return false, nil
}
