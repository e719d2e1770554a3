package manifest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

// WalkOptions configures one enumeration pass over a root directory.
type WalkOptions struct {
	// Exclude lists paths to skip. An entry containing a path separator is
	// matched against the full absolute path; otherwise it is matched
	// against each entry's basename.
	Exclude []string
	// Blacklist is an additional, user-supplied set of absolute paths to
	// skip, as loaded by LoadBlacklist (kept sorted for binary search).
	Blacklist []string
	// ChaseSymlinks resolves one level of symlink; if the target is
	// itself a directory it is traversed as such.
	ChaseSymlinks bool
}

const maxSymlinkDepth = 1

// Walk enumerates root depth-first and returns entries in lexicographic
// order by absolute path, matching the deterministic order the catalog and
// retention passes depend on. Entry.Type is always TypeRegular for a
// regular file here; Walk does not consult IsDataFile — the backup engine
// does, and the copier upgrades an entry to TypeDataFile only after a
// successful page-aware copy.
func Walk(root string, opts WalkOptions) ([]Entry, error) {
	var entries []Entry
	err := walkDir(root, root, opts, 0, &entries)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func walkDir(root, dir string, opts WalkOptions, depth int, out *[]Entry) error {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return rmanerr.Wrap(err, rmanerr.KindSystem, "reading directory %s", dir)
	}
	for _, de := range dirents {
		full := filepath.Join(dir, de.Name())
		if excluded(full, de.Name(), opts) {
			continue
		}
		info, err := os.Lstat(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return rmanerr.Wrap(err, rmanerr.KindSystem, "stat %s", full)
		}
		rel, _ := filepath.Rel(root, full)
		rel = filepath.ToSlash(rel)

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, terr := os.Readlink(full)
			e := Entry{Path: full, RelPath: rel, Type: TypeSymlink, Mode: uint32(info.Mode().Perm()), LinkTarget: target, MTime: info.ModTime()}
			*out = append(*out, e)
			if terr == nil && opts.ChaseSymlinks && depth < maxSymlinkDepth {
				targetAbs := target
				if !filepath.IsAbs(targetAbs) {
					targetAbs = filepath.Join(dir, target)
				}
				if ti, statErr := os.Stat(targetAbs); statErr == nil && ti.IsDir() {
					if walkErr := walkDir(root, targetAbs, opts, depth+1, out); walkErr != nil {
						return walkErr
					}
				}
			}
		case info.IsDir():
			*out = append(*out, Entry{Path: full, RelPath: rel, Type: TypeDir, Mode: uint32(info.Mode().Perm()), MTime: info.ModTime()})
			if err := walkDir(root, full, opts, depth, out); err != nil {
				return err
			}
		case info.Mode()&os.ModeSocket != 0:
			*out = append(*out, Entry{Path: full, RelPath: rel, Type: TypeSocket, Mode: uint32(info.Mode().Perm()), MTime: info.ModTime()})
		default:
			*out = append(*out, Entry{Path: full, RelPath: rel, Type: TypeRegular, Size: info.Size(), Mode: uint32(info.Mode().Perm()), MTime: info.ModTime()})
		}
	}
	return nil
}

func excluded(full, base string, opts WalkOptions) bool {
	for _, ex := range opts.Exclude {
		if strings.ContainsRune(ex, filepath.Separator) {
			if ex == full {
				return true
			}
		} else if ex == base {
			return true
		}
	}
	if len(opts.Blacklist) > 0 {
		i := sort.SearchStrings(opts.Blacklist, full)
		if i < len(opts.Blacklist) && opts.Blacklist[i] == full {
			return true
		}
	}
	return false
}

// LoadBlacklist reads one absolute path per non-comment, non-blank line
// and returns them sorted for Walk's binary search.
func LoadBlacklist(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rmanerr.Wrap(err, rmanerr.KindSystem, "reading blacklist %s", path)
	}
	var list []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list = append(list, line)
	}
	sort.Strings(list)
	return list, nil
}
