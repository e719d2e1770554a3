package restore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

const recoveryConfName = "pg_rman_recovery.conf"

const includeDirective = `include = 'pg_rman_recovery.conf'`

// WriteRecoveryConfig emits <pgconfDir>/pg_rman_recovery.conf with
// restore_command plus whichever recovery_target_* keys t specifies,
// ensures postgresql.conf includes it exactly once, creates
// recovery.signal and removes standby.signal — step 8 of the staging
// order.
func WriteRecoveryConfig(pgdata, pgconfDir, arclogDir string, t Target) error {
	var b strings.Builder
	fmt.Fprintf(&b, "restore_command = 'cp %s/%%f %%p'\n", arclogDir)
	if t.HasTime {
		fmt.Fprintf(&b, "recovery_target_time = '%s'\n", t.Time.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	if t.HasXID {
		fmt.Fprintf(&b, "recovery_target_xid = '%d'\n", t.XID)
	}
	if t.HasTime || t.HasXID {
		fmt.Fprintf(&b, "recovery_target_inclusive = '%t'\n", t.Inclusive)
	}
	if t.Timeline != "" {
		fmt.Fprintf(&b, "recovery_target_timeline = '%s'\n", t.Timeline)
	}
	if t.Action != "" {
		fmt.Fprintf(&b, "recovery_target_action = '%s'\n", t.Action)
	}

	path := filepath.Join(pgconfDir, recoveryConfName)
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", path)
	}

	if err := ensureInclude(filepath.Join(pgconfDir, "postgresql.conf")); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(pgdata, "recovery.signal"), nil, 0600); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "creating recovery.signal")
	}
	standby := filepath.Join(pgdata, "standby.signal")
	if err := os.Remove(standby); err != nil && !os.IsNotExist(err) {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "removing standby.signal")
	}
	return nil
}

// ensureInclude removes any line this tool previously inserted (a prior
// restore's include directive, which may have been duplicated by manual
// edits) and appends exactly one, so repeated restores never accumulate
// duplicate includes.
func ensureInclude(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = nil
		} else {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "reading %s", path)
		}
	}

	var kept []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == includeDirective {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept, includeDirective)

	out := strings.Join(kept, "\n") + "\n"
	if err := os.WriteFile(path, []byte(out), 0600); err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "writing %s", path)
	}
	return nil
}
