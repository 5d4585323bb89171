package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/lox/ito/internal/config"
	"github.com/lox/ito/internal/randutil"
)

// TopicsCmd prints the topic catalog
type TopicsCmd struct {
	File     string `kong:"type='path',help='HCL topic catalog (overrides config)'"`
	Category string `kong:"help='Only show topics in this category'"`
}

func (c *TopicsCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.File != "" {
		cfg.Topics.File = c.File
	}
	catalog, err := loadTopics(cfg.Topics, randutil.New(0))
	if err != nil {
		return err
	}

	entries := catalog.List()
	if c.Category != "" {
		entries = catalog.ByCategory(c.Category)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tTITLE\tSCALE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, e.Category, e.Title, e.Description)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d topics\n", len(entries))
	return nil
}
