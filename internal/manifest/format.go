package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// fieldCount is the token count of a non-symlink line; a symlink line has
// one more.
const fieldCount = 6

// WriteLine formats e exactly as the manifest line grammar requires:
//
//	<relative path> <type> <write_size> <crc32c> <mode_octal> <iso8601_mtime>[ <linked_path>]
func WriteLine(w io.Writer, e Entry) error {
	line := fmt.Sprintf("%s %c %d %d %04o %s",
		e.RelPath, e.Type, e.WriteSize, e.CRC, e.Mode,
		e.MTime.UTC().Format(time.RFC3339))
	if e.Type == TypeSymlink {
		line += " " + e.LinkTarget
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// ParseLine parses one manifest line with strict field-count enforcement:
// a non-symlink line has exactly 6 tokens, a symlink line exactly 7. Any
// other shape fails with KindCorrupted.
func ParseLine(line string) (Entry, error) {
	fields := strings.Fields(line)
	isLink := len(fields) == fieldCount+1
	if len(fields) != fieldCount && !isLink {
		return Entry{}, rmanerr.New(rmanerr.KindCorrupted, "malformed manifest line: %q", line)
	}
	e := Entry{RelPath: fields[0]}
	if len(fields[1]) != 1 {
		return Entry{}, rmanerr.New(rmanerr.KindCorrupted, "malformed manifest line: %q", line)
	}
	e.Type = EntryType(fields[1][0])
	ws, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Entry{}, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed write_size in manifest line: %q", line)
	}
	e.WriteSize = ws
	crc, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return Entry{}, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed crc in manifest line: %q", line)
	}
	e.CRC = uint32(crc)
	mode, err := strconv.ParseUint(fields[4], 8, 32)
	if err != nil {
		return Entry{}, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed mode in manifest line: %q", line)
	}
	e.Mode = uint32(mode)
	mtime, err := time.Parse(time.RFC3339, fields[5])
	if err != nil {
		return Entry{}, rmanerr.Wrap(err, rmanerr.KindCorrupted, "malformed mtime in manifest line: %q", line)
	}
	e.MTime = mtime
	if isLink {
		e.LinkTarget = fields[6]
	}
	return e, nil
}

// Manifest is an ordered, in-memory view of one stream's manifest file,
// keyed by relative path for the copier's previous-backup lookups.
type Manifest struct {
	Entries []Entry
	byPath  map[string]*Entry
}

func New() *Manifest {
	return &Manifest{byPath: make(map[string]*Entry)}
}

func (m *Manifest) Add(e Entry) {
	m.Entries = append(m.Entries, e)
	m.byPath[e.RelPath] = &m.Entries[len(m.Entries)-1]
}

// Lookup returns the entry for rel, used by the backup engine to compare a
// file's current mtime against the previous backup's manifest.
func (m *Manifest) Lookup(rel string) (Entry, bool) {
	e, ok := m.byPath[rel]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Write serializes the manifest, one WriteLine call per entry, in the
// order Entries was built (the walker's lexicographic enumeration order).
func Write(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "creating manifest %s", path)
	}
	defer f.Close()
	bw := bufio.NewWriter(f)
	for _, e := range m.Entries {
		if err := WriteLine(bw, e); err != nil {
			return rmanerr.Wrap(err, rmanerr.KindSystem, "writing manifest %s", path)
		}
	}
	return bw.Flush()
}

// Read parses a manifest file. When root is non-empty, each entry's stored
// relative path is joined with root to populate Entry.Path as an absolute
// path; root == "" leaves Path empty and callers use RelPath directly.
func Read(path, root string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "opening manifest %s", path)
	}
	defer f.Close()
	m := New()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return nil, err
		}
		if root != "" {
			e.Path = filepath.Join(root, e.RelPath)
		}
		m.Add(e)
	}
	if err := scanner.Err(); err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindCorrupted, "reading manifest %s", path)
	}
	return m, nil
}
