package index

import (
	"regexp"
	"strings"

	"github.com/newhook/diaglog/internal/model"
)

// FoldKind is the kind of a foldable region.
type FoldKind string

const (
	// FoldISOC is a diagnostic health check block.
	FoldISOC FoldKind = "isoc"
	// FoldReset is a power-on reset dump.
	FoldReset FoldKind = "reset"
)

var (
	isocStartMarkers = []string{
		"***Start: iSOC Status Check before Test Setup***",
		"***Start: iSOC Status Check after Test Teardown and peform corrective action if needed***",
	}
	isocEndPatterns = []*regexp.Regexp{
		regexp.MustCompile(`End:\s*iSOC Status Check before Test Setup.*\*\*\*`),
		regexp.MustCompile(`End:\s*iSOC Status Check after Test Teardown.*\*\*\*`),
	}
)

const resetMarker = "Since Boot(Power On Reset)"

// Item is one entry of a phase block or fold: a record or a nested fold.
// For a fold, Index is the fold's header record.
type Item struct {
	Index int   `json:"index"`
	Fold  *Fold `json:"fold,omitempty"`
}

// Fold is a foldable region. Items[0] is its header record.
type Fold struct {
	Kind       FoldKind `json:"kind"`
	Header     int      `json:"header"`
	Items      []Item   `json:"items"`
	HasFailure bool     `json:"hasFailure,omitempty"`
}

// PhaseBlock is a contiguous run of one phase within a test case or final
// section.
type PhaseBlock struct {
	Phase      model.Phase `json:"phase"`
	Items      []Item      `json:"items"`
	HasFailure bool        `json:"hasFailure,omitempty"`
}

// Lines returns the record indexes of the fold in order, nested folds
// included.
func (f *Fold) Lines() []int {
	return itemLines(f.Items)
}

// Lines returns the record indexes of the block in order.
func (b *PhaseBlock) Lines() []int {
	return itemLines(b.Items)
}

func itemLines(items []Item) []int {
	var out []int
	for _, it := range items {
		if it.Fold != nil {
			out = append(out, it.Fold.Lines()...)
			continue
		}
		out = append(out, it.Index)
	}
	return out
}

type foldBuilder struct {
	records      []model.Record
	resetChannel string
	resetContent *regexp.Regexp

	groups map[int][]PhaseBlock
	owner  int
	blocks []PhaseBlock
	isoc   *Fold
	reset  *Fold
}

func newFoldBuilder(records []model.Record, channel string) *foldBuilder {
	return &foldBuilder{
		records:      records,
		resetChannel: "[" + channel + "]",
		resetContent: regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}\] \[INF\] \[` + regexp.QuoteMeta(channel) + `\]`),
		groups:       make(map[int][]PhaseBlock),
		owner:        -1,
	}
}

// build groups each test case's and each final section's records into
// phase blocks containing lines and folds.
func (b *foldBuilder) build() map[int][]PhaseBlock {
	prevLine := 0
	for i := range b.records {
		r := &b.records[i]
		gap := prevLine > 0 && r.Line > prevLine+1
		prevLine = r.Line

		if r.IsTestCaseHeader || r.IsFinalSectionHeader {
			b.closeFolds()
			b.flush()
			b.owner = i
			b.blocks = nil
			continue
		}
		if b.owner < 0 {
			continue
		}
		if gap {
			b.closeFolds()
		}

		switch {
		case isISOCStart(r.Raw):
			b.closeFolds()
			r.IsFoldableHeader = true
			b.isoc = b.open(FoldISOC, i)
			continue
		case b.isoc != nil && isISOCEnd(r.Raw):
			b.closeReset()
			b.isoc.add(i, r.HasFailure)
			b.closeISOC()
			continue
		}

		if b.reset != nil {
			if b.resetContent.MatchString(r.Raw) {
				b.reset.add(i, r.HasFailure)
				continue
			}
			b.closeReset()
		}

		if strings.Contains(r.Raw, resetMarker) && strings.Contains(r.Raw, b.resetChannel) {
			r.IsFoldableHeader = true
			b.reset = b.open(FoldReset, i)
			continue
		}

		if b.isoc != nil {
			b.isoc.add(i, r.HasFailure)
			continue
		}
		b.append(r.Phase, Item{Index: i}, r.HasFailure)
	}
	b.closeFolds()
	b.flush()
	return b.groups
}

func (b *foldBuilder) open(kind FoldKind, header int) *Fold {
	r := b.records[header]
	return &Fold{
		Kind:       kind,
		Header:     header,
		Items:      []Item{{Index: header}},
		HasFailure: r.HasFailure,
	}
}

func (f *Fold) add(index int, failed bool) {
	f.Items = append(f.Items, Item{Index: index})
	f.HasFailure = f.HasFailure || failed
}

func (b *foldBuilder) closeFolds() {
	b.closeReset()
	b.closeISOC()
}

// closeReset closes an open reset fold, nesting it in the open iSOC fold
// if there is one.
func (b *foldBuilder) closeReset() {
	if b.reset == nil {
		return
	}
	f := b.reset
	b.reset = nil
	if b.isoc != nil {
		b.isoc.Items = append(b.isoc.Items, Item{Index: f.Header, Fold: f})
		b.isoc.HasFailure = b.isoc.HasFailure || f.HasFailure
		return
	}
	b.append(b.records[f.Header].Phase, Item{Index: f.Header, Fold: f}, f.HasFailure)
}

func (b *foldBuilder) closeISOC() {
	if b.isoc == nil {
		return
	}
	f := b.isoc
	b.isoc = nil
	b.append(b.records[f.Header].Phase, Item{Index: f.Header, Fold: f}, f.HasFailure)
}

// append adds an item to the current phase block, starting a new block
// when the phase changes.
func (b *foldBuilder) append(phase model.Phase, it Item, failed bool) {
	if n := len(b.blocks); n == 0 || b.blocks[n-1].Phase != phase {
		b.blocks = append(b.blocks, PhaseBlock{Phase: phase})
	}
	last := &b.blocks[len(b.blocks)-1]
	last.Items = append(last.Items, it)
	last.HasFailure = last.HasFailure || failed
}

func (b *foldBuilder) flush() {
	if b.owner < 0 {
		return
	}
	if b.blocks == nil {
		b.blocks = []PhaseBlock{}
	}
	b.groups[b.owner] = b.blocks
}

func isISOCStart(line string) bool {
	for _, m := range isocStartMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func isISOCEnd(line string) bool {
	for _, re := range isocEndPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
