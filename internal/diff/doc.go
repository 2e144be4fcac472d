// Package diff reports how a buffer differs, line by line, from a
// reference text such as the file's content on disk or in version control.
//
// An Overlay keeps the result for one buffer. Lines are matched with
// go-difflib's sequence matcher; equal runs are unchanged, inserted runs
// added, deleted runs removed and replaced runs modified. Modified hunks
// also carry the changed byte spans within the lines.
//
// Hunks are anchored in the buffer, so they follow the text through edits.
// When the buffer changes, only the lines around each edit, plus any hunk
// touching them, are diffed again:
//
//	o := diff.New(buf)
//	o.Start()
//	defer o.Close()
//	o.SetReference(onDisk)
//	snap, err := o.Snapshot()
//	if err != nil {
//		return err
//	}
//	for _, h := range snap.Hunks() {
//		fmt.Println(h.Status, h.Lines)
//	}
package diff
