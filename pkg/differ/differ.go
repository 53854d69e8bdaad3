// Package differ renders the difference between two page captures as a
// short list of "Added:" and "Removed:" lines.
//
// The edit script comes from diff-match-patch (Myers' algorithm) followed by
// a semantic cleanup pass. Edits that only touch whitespace are dropped, so
// reflowed text does not count as a change.
package differ

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// NoChangesSentinel is the Summary of a Result without changes. It is for
// display only; callers decide on Result.HasChanges.
const NoChangesSentinel = "No significant changes detected."

// Granularity is the unit the edit script is computed over.
type Granularity int

const (
	// Words diffs whole runs of non-space (and space) characters, so a changed
	// price shows up as `Removed: "$10"` / `Added: "$12"`.
	Words Granularity = iota
	// Characters diffs individual characters.
	Characters
)

// ParseGranularity maps a config value to a Granularity. Unknown values yield Words.
func ParseGranularity(s string) Granularity {
	if strings.EqualFold(strings.TrimSpace(s), "characters") {
		return Characters
	}
	return Words
}

func (g Granularity) String() string {
	if g == Characters {
		return "characters"
	}
	return "words"
}

// MaxEditUnits bounds the differing middle of two captures, counted in
// characters or words, after the common prefix and suffix are trimmed.
// Character diffs above it are computed over words; word diffs above it are
// reported as one removal and one addition.
const MaxEditUnits = 10000

// Result is the outcome of comparing two captures.
type Result struct {
	// HasChanges is true when at least one non-whitespace edit survived cleanup.
	HasChanges bool
	// Summary holds one line per edit, or NoChangesSentinel.
	Summary string
	Added   int
	Removed int
}

// Differ compares text captures. The zero value is not usable; call New.
type Differ struct {
	granularity Granularity
	dmp         *diffmatchpatch.DiffMatchPatch
}

// Option configures a Differ.
type Option func(*Differ)

// WithGranularity sets the diff unit.
func WithGranularity(g Granularity) Option {
	return func(d *Differ) {
		d.granularity = g
	}
}

// New creates a Differ. Output depends only on the inputs: the diff runs
// without a time limit, and MaxEditUnits bounds its cost instead.
func New(opts ...Option) *Differ {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	d := &Differ{granularity: Words, dmp: dmp}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var defaultDiffer = New()

// Diff compares old and new with the default Differ.
func Diff(oldText, newText string) Result {
	return defaultDiffer.Diff(oldText, newText)
}

// Granularity returns the configured diff unit.
func (d *Differ) Granularity() Granularity {
	return d.granularity
}

// Diff compares oldText to newText.
func (d *Differ) Diff(oldText, newText string) Result {
	if oldText == newText {
		return Result{Summary: NoChangesSentinel}
	}

	diffs := d.editScript(oldText, newText)
	diffs = d.dmp.DiffCleanupSemantic(diffs)

	var (
		lines []string
		res   Result
	)
	for _, df := range diffs {
		text := strings.TrimSpace(df.Text)
		if text == "" {
			continue
		}
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			lines = append(lines, fmt.Sprintf(`Added: "%s"`, text))
			res.Added++
		case diffmatchpatch.DiffDelete:
			lines = append(lines, fmt.Sprintf(`Removed: "%s"`, text))
			res.Removed++
		}
	}

	if len(lines) == 0 {
		res.Summary = NoChangesSentinel
		return res
	}
	res.HasChanges = true
	res.Summary = strings.Join(lines, "\n")
	return res
}

func (d *Differ) editScript(oldText, newText string) []diffmatchpatch.Diff {
	if d.granularity == Characters {
		a, b := []rune(oldText), []rune(newText)
		if editSize(a, b) <= MaxEditUnits {
			return d.dmp.DiffMainRunes(a, b, false)
		}
	}
	if diffs, ok := d.wordScript(oldText, newText); ok {
		return diffs
	}
	return coarseScript([]rune(oldText), []rune(newText))
}

// wordScript diffs token sequences. Each distinct token is encoded as one
// rune, the rune sequences are diffed, and the result is decoded back to
// text before cleanup. ok is false when there are too many distinct tokens
// to encode.
func (d *Differ) wordScript(oldText, newText string) ([]diffmatchpatch.Diff, bool) {
	enc := newTokenEncoder()
	oldRunes, ok := enc.encode(tokenize(oldText))
	if !ok {
		return nil, false
	}
	newRunes, ok := enc.encode(tokenize(newText))
	if !ok {
		return nil, false
	}

	var diffs []diffmatchpatch.Diff
	if editSize(oldRunes, newRunes) <= MaxEditUnits {
		diffs = d.dmp.DiffMainRunes(oldRunes, newRunes, false)
	} else {
		diffs = coarseScript(oldRunes, newRunes)
	}
	for i := range diffs {
		diffs[i].Text = enc.decode(diffs[i].Text)
	}
	return diffs, true
}

// editSize is the number of units left in a and b once their common prefix
// and suffix are removed.
func editSize(a, b []rune) int {
	p := commonPrefix(a, b)
	s := commonSuffix(a[p:], b[p:])
	return len(a) + len(b) - 2*(p+s)
}

// coarseScript reports everything between the common prefix and suffix as a
// single deletion followed by a single insertion. It runs in linear time.
func coarseScript(a, b []rune) []diffmatchpatch.Diff {
	p := commonPrefix(a, b)
	s := commonSuffix(a[p:], b[p:])

	var diffs []diffmatchpatch.Diff
	add := func(op diffmatchpatch.Operation, text []rune) {
		if len(text) > 0 {
			diffs = append(diffs, diffmatchpatch.Diff{Type: op, Text: string(text)})
		}
	}
	add(diffmatchpatch.DiffEqual, a[:p])
	add(diffmatchpatch.DiffDelete, a[p:len(a)-s])
	add(diffmatchpatch.DiffInsert, b[p:len(b)-s])
	add(diffmatchpatch.DiffEqual, a[len(a)-s:])
	return diffs
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
