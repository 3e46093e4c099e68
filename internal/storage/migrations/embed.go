// Package migrations embeds the SQL schema files for both databases
// and applies them at engine startup. Files run in lexical order and
// are written to be idempotent, so reapplying on every start is safe.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// sqlFile is one embedded migration, read and ready to apply.
type sqlFile struct {
	name string
	body string
}

// readSQLFiles loads every .sql entry under dir in lexical order.
func readSQLFiles(fsys fs.FS, dir string) ([]sqlFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	files := make([]sqlFile, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		files = append(files, sqlFile{name: name, body: string(data)})
	}
	return files, nil
}

// singleStatement strips comment lines and the terminating semicolon,
// leaving the file's one statement. ClickHouse migration files hold
// exactly one statement each since the driver executes one per call.
func singleStatement(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}
	stmt := strings.TrimSpace(strings.Join(kept, "\n"))
	return strings.TrimSuffix(stmt, ";")
}
