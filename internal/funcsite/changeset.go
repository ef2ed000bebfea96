package funcsite

import "sort"

// ChangeMap accumulates changed function names per file during a scan. Each
// name is recorded at most once per file; first-seen order is retained.
type ChangeMap map[string]*nameSet

type nameSet struct {
	seen  map[string]struct{}
	order []string
}

func (m ChangeMap) add(file, name string) {
	set, ok := m[file]
	if !ok {
		set = &nameSet{seen: make(map[string]struct{})}
		m[file] = set
	}
	if _, dup := set.seen[name]; dup {
		return
	}
	set.seen[name] = struct{}{}
	set.order = append(set.order, name)
}

// Len returns the number of files with at least one changed function.
func (m ChangeMap) Len() int {
	return len(m)
}

// Freeze converts the map into an immutable, ordered view. Files are sorted
// lexically and names keep the order in which the scan first saw them.
func (m ChangeMap) Freeze() ChangeSet {
	files := make([]string, 0, len(m))
	for file := range m {
		files = append(files, file)
	}
	sort.Strings(files)

	entries := make([]FileChanges, 0, len(files))
	for _, file := range files {
		names := make([]string, len(m[file].order))
		copy(names, m[file].order)
		entries = append(entries, FileChanges{File: file, Functions: names})
	}
	return ChangeSet{entries: entries}
}

// FileChanges lists the changed functions of a single file.
type FileChanges struct {
	File      string   `json:"file"`
	Functions []string `json:"functions"`
}

// ChangeSet is the aggregated result of a scan.
type ChangeSet struct {
	entries []FileChanges
}

// Empty reports whether no changes were recognised.
func (c ChangeSet) Empty() bool {
	return len(c.entries) == 0
}

// Files returns a copy of the per-file entries in stable order.
func (c ChangeSet) Files() []FileChanges {
	out := make([]FileChanges, len(c.entries))
	for i, entry := range c.entries {
		out[i] = FileChanges{File: entry.File, Functions: append([]string(nil), entry.Functions...)}
	}
	return out
}

// Functions returns the changed function names for file, or nil.
func (c ChangeSet) Functions(file string) []string {
	for _, entry := range c.entries {
		if entry.File == file {
			return append([]string(nil), entry.Functions...)
		}
	}
	return nil
}

// Map returns the set as a plain file → names map.
func (c ChangeSet) Map() map[string][]string {
	out := make(map[string][]string, len(c.entries))
	for _, entry := range c.entries {
		out[entry.File] = append([]string(nil), entry.Functions...)
	}
	return out
}
