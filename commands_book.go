package main

import (
	"fmt"
	"strconv"
	"strings"

	"library-lending/library"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newBookCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage and search the catalog"}
	cmd.AddCommand(
		newBookAddCmd(a),
		newBookEditCmd(a),
		&cobra.Command{
			Use:   "remove <book-id>",
			Short: "Remove a book and its copies (librarian)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if _, err := a.login(library.RoleLibrarian); err != nil {
					return err
				}
				if err := a.mgr.RemoveBook(id); err != nil {
					return err
				}
				fmt.Printf("Removed book %d.\n", id)
				return nil
			},
		},
		newBookSearchCmd(a),
		&cobra.Command{
			Use:   "list",
			Short: "List every book",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				printBooks(a, a.mgr.Catalog().Books())
				return nil
			},
		},
		&cobra.Command{
			Use:   "copies <book-id>",
			Short: "List the physical copies of a book",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				b, err := a.mgr.Catalog().Book(id)
				if err != nil {
					return err
				}
				fmt.Printf("%s by %s\n", b.Title, b.Author)
				fmt.Printf("%-6s %-16s %-10s %s\n", "ID", "Barcode", "Location", "Status")
				fmt.Println(strings.Repeat("-", 50))
				for _, c := range a.mgr.Catalog().CopiesOf(id) {
					status := "available"
					if !c.Available {
						status = "on loan"
					}
					fmt.Printf("%-6d %-16s %-10s %s\n", c.ID, c.Barcode, c.Location, status)
				}
				return nil
			},
		},
	)
	return cmd
}

// bookFlags registers the descriptive fields of a book on fs.
func bookFlags(fs *pflag.FlagSet, b *library.BookFields) {
	fs.StringVar(&b.ISBN, "isbn", "", "ISBN")
	fs.StringVar(&b.Title, "title", "", "title")
	fs.StringVar(&b.Author, "author", "", "author")
	fs.StringVar(&b.Subject, "subject", "", "subject")
	fs.IntVar(&b.Year, "year", 0, "publication year")
	fs.StringVar(&b.Language, "language", "", "language")
	fs.IntVar(&b.Pages, "pages", 0, "page count")
	fs.StringVar(&b.RackPosition, "rack", "", "rack position")
	fs.StringVar(&b.Description, "description", "", "description")
}

func newBookAddCmd(a *app) *cobra.Command {
	var (
		fields library.BookFields
		copies int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a book with its copies (librarian)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.login(library.RoleLibrarian); err != nil {
				return err
			}
			b, err := a.mgr.AddBook(fields, copies)
			if err != nil {
				return err
			}
			fmt.Printf("Added book ID %d with %d copies.\n", b.ID, copies)
			return nil
		},
	}
	bookFlags(cmd.Flags(), &fields)
	cmd.Flags().IntVar(&copies, "copies", 1, "number of physical copies")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newBookEditCmd(a *app) *cobra.Command {
	var fields library.BookFields
	cmd := &cobra.Command{
		Use:   "edit <book-id>",
		Short: "Edit a book's descriptive fields (librarian)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.login(library.RoleLibrarian); err != nil {
				return err
			}
			cur, err := a.mgr.Catalog().Book(id)
			if err != nil {
				return err
			}

			// Unset flags keep the stored value; the edit itself overwrites.
			next := cur.BookFields
			fs := cmd.Flags()
			keep := map[string]func(){
				"isbn":        func() { next.ISBN = fields.ISBN },
				"title":       func() { next.Title = fields.Title },
				"author":      func() { next.Author = fields.Author },
				"subject":     func() { next.Subject = fields.Subject },
				"year":        func() { next.Year = fields.Year },
				"language":    func() { next.Language = fields.Language },
				"pages":       func() { next.Pages = fields.Pages },
				"rack":        func() { next.RackPosition = fields.RackPosition },
				"description": func() { next.Description = fields.Description },
			}
			for name, apply := range keep {
				if fs.Changed(name) {
					apply()
				}
			}

			if err := a.mgr.EditBook(id, next); err != nil {
				return err
			}
			fmt.Printf("Updated book %d.\n", id)
			return nil
		},
	}
	bookFlags(cmd.Flags(), &fields)
	return cmd
}

func newBookSearchCmd(a *app) *cobra.Command {
	var q library.SearchQuery
	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search by keyword, author, subject and year",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				q.Keyword = args[0]
			}
			books := a.mgr.SearchBooks(q)
			if len(books) == 0 {
				fmt.Println("No matching books.")
				return nil
			}
			printBooks(a, books)
			return nil
		},
	}
	cmd.Flags().StringVar(&q.Author, "author", "", "author substring")
	cmd.Flags().StringVar(&q.Subject, "subject", "", "subject substring")
	cmd.Flags().IntVar(&q.Year, "year", 0, "publication year")
	return cmd
}

func printBooks(a *app, books []library.Book) {
	if len(books) == 0 {
		fmt.Println("No books in library.")
		return
	}
	fmt.Printf("%-5s %-16s %-35s %-25s %-6s %-8s %s\n", "ID", "ISBN", "Title", "Author", "Year", "Rack", "Available")
	fmt.Println(strings.Repeat("-", 115))
	for _, b := range books {
		fmt.Printf("%-5d %-16s %-35s %-25s %-6d %-8s %d/%d\n",
			b.ID,
			library.TruncateString(b.ISBN, 16),
			library.TruncateString(b.Title, 35),
			library.TruncateString(b.Author, 25),
			b.Year,
			library.TruncateString(b.RackPosition, 8),
			a.mgr.CountAvailableCopies(b.ID),
			len(a.mgr.Catalog().CopiesOf(b.ID)))
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
