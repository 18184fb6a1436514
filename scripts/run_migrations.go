package main

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/threadline/shop-backend/internal/config"
)

// Applies migrations/*.up.sql in order, or *.down.sql in reverse order.
//
//	go run scripts/run_migrations.go up
//	go run scripts/run_migrations.go down
//
// MIGRATIONS_DIR overrides the default migrations directory.
func main() {
	if len(os.Args) != 2 || (os.Args[1] != "up" && os.Args[1] != "down") {
		log.Fatalf("usage: %s up|down", filepath.Base(os.Args[0]))
	}
	direction := os.Args[1]

	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	scripts, err := collectScripts(dir, direction)
	if err != nil {
		log.Fatalf("collect migrations: %v", err)
	}
	if len(scripts) == 0 {
		log.Fatalf("no .%s.sql files in %s", direction, dir)
	}

	cfg := config.Load()
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	for _, path := range scripts {
		statements, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		if _, err := db.Exec(string(statements)); err != nil {
			log.Fatalf("apply %s: %v", path, err)
		}
		log.Printf("applied %s", filepath.Base(path))
	}
	log.Printf("%d migration(s) applied (%s)", len(scripts), direction)
}

// collectScripts lists the direction's files sorted by name, ascending for
// up and descending for down, so down-migrations unwind in reverse.
func collectScripts(dir, direction string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	suffix := "." + direction + ".sql"
	var scripts []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		scripts = append(scripts, filepath.Join(dir, entry.Name()))
	}

	sort.Slice(scripts, func(i, j int) bool {
		if direction == "down" {
			return scripts[i] > scripts[j]
		}
		return scripts[i] < scripts[j]
	})
	return scripts, nil
}
