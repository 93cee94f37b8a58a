package main

import (
	"fmt"
	"os"
	"strings"

	"library-lending/library"

	flag "github.com/spf13/pflag"
)

func main() {
	cfg, err := library.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading configuration: %v\n", err)
		os.Exit(1)
	}
	booksFile := flag.String("books", "data.txt", "legacy book records")
	usersFile := flag.String("users", "users.txt", "legacy member records")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database file")
	flag.Parse()

	logger, err := library.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	manager, err := library.NewLibraryManager(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer manager.Close()

	failed := false
	for _, src := range []struct {
		label string
		path  string
		load  func(*os.File) (int, []library.LineError, error)
	}{
		{"books", *booksFile, func(f *os.File) (int, []library.LineError, error) { return manager.ImportBooks(f) }},
		{"members", *usersFile, func(f *os.File) (int, []library.LineError, error) { return manager.ImportMembers(f) }},
	} {
		if src.path == "" {
			continue
		}
		fmt.Printf("Importing %s from %s...\n", src.label, src.path)
		f, err := os.Open(src.path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("Warning: %s not found, skipping\n", src.path)
				continue
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			failed = true
			continue
		}
		n, bad, err := src.load(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", src.path, err)
			failed = true
			continue
		}
		for _, e := range bad {
			fmt.Printf("  skipped %s\n", e.Error())
		}
		fmt.Printf("Successfully imported: %d %s, skipped: %d\n", n, src.label, len(bad))
	}

	books := manager.Catalog().Books()
	if len(books) > 0 {
		fmt.Println("\nCatalog:")
		fmt.Printf("%-4s %-16s %-45s %-25s %s\n", "ID", "ISBN", "Title", "Author", "Copies")
		fmt.Println(strings.Repeat("-", 100))
		for _, book := range books {
			fmt.Printf("%-4d %-16s %-45s %-25s %d\n", book.ID, library.TruncateString(book.ISBN, 16), library.TruncateString(book.Title, 45), library.TruncateString(book.Author, 25), len(manager.Catalog().CopiesOf(book.ID)))
		}
	}

	if failed {
		manager.Close()
		os.Exit(1)
	}
}
