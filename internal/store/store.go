// Package store defines mission persistence and the helpers shared by the
// SQLite and PostgreSQL implementations.
package store

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Driver names accepted by the db.driver setting.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Migration is one numbered schema file, e.g. 001_init.sql.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// LoadMigrations reads every *.sql file in dir of fsys, sorted by version.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	files, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var migs []Migration
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		name := f.Name()
		if !strings.HasSuffix(name, ".sql") {
			continue
		}
		v, err := ParseMigrationVersion(name)
		if err != nil {
			return nil, err
		}
		body, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		migs = append(migs, Migration{Version: v, Name: name, SQL: string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	return migs, nil
}

// ParseMigrationVersion extracts the leading number of a migration file name.
func ParseMigrationVersion(filename string) (int, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, _, _ := strings.Cut(base, "_")
	v, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, fmt.Errorf("invalid migration version in %s", filename)
	}
	return v, nil
}

// Pending filters out migrations whose versions are already applied.
func Pending(migs []Migration, applied map[int]bool) []Migration {
	var out []Migration
	for _, m := range migs {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}
