package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dshills/strand/internal/buffer"
	"github.com/dshills/strand/internal/syntax"
)

// runHighlight parses a file and prints the kind of every highlighted
// range, or its folds.
func runHighlight(e *env, args []string) (int, error) {
	var lang string
	var folds, treeSitter bool
	fs, err := subcommand(e, "highlight", "highlight [-lang name] [-folds] <file>", 1, args, func(fs *flag.FlagSet) {
		fs.StringVar(&lang, "lang", "", "Language name; detected from the file name by default")
		fs.BoolVar(&folds, "folds", false, "Print foldable blocks instead of highlights")
		fs.BoolVar(&treeSitter, "tree-sitter", false, "Parse with tree-sitter when the binary includes it")
	})
	if err != nil {
		return 2, err
	}
	path := fs.Arg(0)
	text, err := os.ReadFile(path)
	if err != nil {
		return 2, err
	}

	if lang == "" {
		lang = e.cfg.Syntax.Languages[strings.ToLower(filepath.Ext(path))]
	}
	tok := syntax.TokenizerForFile(path)
	if lang != "" {
		tok = syntax.TokenizerForLanguage(lang)
	}
	var parser syntax.Parser = syntax.NewBlockParser(tok)
	if treeSitter {
		p, ok := treeSitterParser(tok.Language())
		if !ok {
			return 2, fmt.Errorf("no tree-sitter grammar for %s in this build", tok.Language())
		}
		parser = p
	}

	b := buffer.New(string(text), e.cfg.Buffer.Options()...)
	layer := syntax.NewLayer(b, parser, append(e.cfg.Syntax.Options(), syntax.WithLayerLogger(e.log))...)
	layer.Start()
	defer layer.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	snap, err := layer.WaitIdle(ctx)
	if err != nil {
		return 1, fmt.Errorf("parse %s: %w", path, err)
	}
	e.log.Debug("parsed %s as %s: %+v", path, snap.Tree().Language(), snap.Stats())

	w := bufio.NewWriter(e.stdout)
	defer w.Flush()
	if folds {
		for _, f := range snap.Folds() {
			fmt.Fprintf(w, "%d-%d\n", f.StartLine+1, f.EndLine+1)
		}
		return 0, nil
	}
	doc := snap.Text()
	for _, sp := range snap.Highlights(buffer.Range{End: doc.Len()}) {
		if sp.Kind == syntax.KindText {
			continue
		}
		p, _ := doc.OffsetToPoint(sp.Range.Start)
		s, _ := doc.TextForRange(sp.Range)
		fmt.Fprintf(w, "%d:%d\t%s\t%s\n", p.Line+1, p.Column+1, sp.Kind, strconv.Quote(s))
	}
	return 0, nil
}
