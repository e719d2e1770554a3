package backup

import (
	"bufio"
	"context"
	"os/exec"
	"strings"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// snapshotMode is one of the six forward modes the snapshot script
// protocol defines, plus the cleanup token appended when invoked from the
// error handler.
type snapshotMode string

const (
	modeFreeze   snapshotMode = "freeze"
	modeSplit    snapshotMode = "split"
	modeUnfreeze snapshotMode = "unfreeze"
	modeMount    snapshotMode = "mount"
	modeUnmount  snapshotMode = "umount"
	modeResync   snapshotMode = "resync"
)

// SnapshotRunner drives the external snapshot_script protocol: each
// invocation emits zero or more content lines and a final "SUCCESS" line,
// else the mode failed.
type SnapshotRunner struct {
	ScriptPath string

	// cleanup is the LIFO stack of inverse operations pushed as each
	// forward op succeeds, replayed on error.
	cleanup []snapshotMode
}

// invoke runs the script in the given mode, optionally appending the
// literal "cleanup" token, and returns its content lines (everything
// before the final SUCCESS line).
func (r *SnapshotRunner) invoke(ctx context.Context, mode snapshotMode, cleanup bool) ([]string, error) {
	args := []string{string(mode)}
	if cleanup {
		args = append(args, "cleanup")
	}
	cmd := exec.CommandContext(ctx, r.ScriptPath, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "starting snapshot_script %s", mode)
	}
	if err := cmd.Start(); err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "starting snapshot_script %s", mode)
	}

	var lines []string
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	waitErr := cmd.Wait()

	if len(lines) == 0 || lines[len(lines)-1] != "SUCCESS" {
		if cleanup {
			return lines, rmanerr.New(rmanerr.KindSystem, "snapshot_script %s cleanup did not report SUCCESS", mode)
		}
		return lines, rmanerr.New(rmanerr.KindSystem, "snapshot_script %s did not report SUCCESS", mode)
	}
	if waitErr != nil && !cleanup {
		return nil, rmanerr.Wrap(waitErr, rmanerr.KindSystem, "snapshot_script %s exited with error", mode)
	}
	return lines[:len(lines)-1], nil
}

// Freeze runs the freeze/split pair and returns the tablespace names the
// snapshot reports (the pseudo-name "PG-DATA" denotes the cluster itself).
func (r *SnapshotRunner) Freeze(ctx context.Context) ([]string, error) {
	if _, err := r.invoke(ctx, modeFreeze, false); err != nil {
		return nil, err
	}
	r.cleanup = append(r.cleanup, modeUnfreeze)
	names, err := r.invoke(ctx, modeSplit, false)
	if err != nil {
		return nil, err
	}
	r.cleanup = append(r.cleanup, modeResync)
	return names, nil
}

// Mount runs the mount mode and parses its "name=mountpoint" lines.
func (r *SnapshotRunner) Mount(ctx context.Context) (map[string]string, error) {
	lines, err := r.invoke(ctx, modeMount, false)
	if err != nil {
		return nil, err
	}
	r.cleanup = append(r.cleanup, modeUnmount)
	mounts := make(map[string]string, len(lines))
	for _, l := range lines {
		name, path, ok := strings.Cut(l, "=")
		if !ok {
			return nil, rmanerr.New(rmanerr.KindSystem, "malformed snapshot_script mount line %q", l)
		}
		mounts[name] = path
	}
	return mounts, nil
}

// Cleanup replays the cleanup stack LIFO with the "cleanup" token set;
// failures are logged as warnings by the caller, never fatal.
func (r *SnapshotRunner) Cleanup(ctx context.Context) []error {
	var errs []error
	for i := len(r.cleanup) - 1; i >= 0; i-- {
		if _, err := r.invoke(ctx, r.cleanup[i], true); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanup = nil
	return errs
}
