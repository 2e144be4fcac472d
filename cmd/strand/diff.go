package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/diff"
)

// runDiff compares file against reference. Like diff(1) it exits 1 when
// they differ.
func runDiff(e *env, args []string) (int, error) {
	var unified, ignoreSpace bool
	fs, err := subcommand(e, "diff", "diff [-unified] [-ignore-space] <reference> <file>", 2, args, func(fs *flag.FlagSet) {
		fs.BoolVar(&unified, "unified", false, "Print a unified diff instead of line statuses")
		fs.BoolVar(&ignoreSpace, "ignore-space", e.cfg.Diff.IgnoreWhitespace, "Treat lines differing only in whitespace as equal")
	})
	if err != nil {
		return 2, err
	}
	refPath, path := fs.Arg(0), fs.Arg(1)
	ref, err := os.ReadFile(refPath)
	if err != nil {
		return 2, err
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return 2, err
	}

	b := buffer.New(string(text), e.cfg.Buffer.Options()...)
	opts := append(e.cfg.Diff.Options(), diff.WithIgnoreWhitespace(ignoreSpace), diff.WithLogger(e.log))
	o := diff.New(b, opts...)
	defer o.Close()
	o.SetReference(string(ref))
	snap, err := o.Snapshot()
	if err != nil {
		return 2, fmt.Errorf("diff %s: %w", path, err)
	}
	hunks := snap.Hunks()
	e.log.Debug("%s: %d hunks against %s", path, len(hunks), refPath)

	w := bufio.NewWriter(e.stdout)
	defer w.Flush()
	if unified {
		out, err := snap.Unified(filepath.ToSlash(path))
		if err != nil {
			return 2, err
		}
		w.WriteString(out)
	} else {
		printStatuses(w, b.Snapshot(), snap)
	}
	if len(hunks) > 0 {
		return 1, nil
	}
	return 0, nil
}

// printStatuses writes every line of the file behind its gutter sign.
func printStatuses(w *bufio.Writer, text *buffer.Snapshot, snap *diff.Snapshot) {
	last := text.LineCount() - 1
	for line, s := range text.Lines() {
		if line == last && s == "" && snap.LineStatus(line) == diff.Unchanged {
			break
		}
		fmt.Fprintf(w, "%c %4d  %s\n", snap.LineStatus(line).Sign(), line+1, s)
	}
}
