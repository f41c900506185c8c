package index

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/highlight"
	"github.com/newhook/diaglog/internal/model"
	"github.com/newhook/diaglog/internal/parser"
	"github.com/newhook/diaglog/internal/prescan"
)

const (
	isocStart  = "***Start: iSOC Status Check before Test Setup***"
	isocEnd    = "***End: iSOC Status Check before Test Setup***"
	resetStart = "[2024-01-01 00:00:00.000] [INF] [/dev/ttyUSB_SIPDBG_02] Since Boot(Power On Reset)"
	resetLine  = "[2024-01-01 00:00:00.001] [INF] [/dev/ttyUSB_SIPDBG_02] boot stage"
)

func classify(t *testing.T, lines ...string) []model.Record {
	t.Helper()
	hl := highlight.New(catalog.Default())
	res := prescan.Scan(hl, lines)
	records, _ := parser.New(hl, &res).ClassifyLines(parser.State{}, 0, lines)
	return records
}

func rawIndex(t *testing.T, records []model.Record, raw string) int {
	t.Helper()
	for i, r := range records {
		if r.Raw == raw {
			return i
		}
	}
	t.Fatalf("no record %q", raw)
	return -1
}

func TestBuild_CollapseMap(t *testing.T) {
	records := classify(t, "tests/a.py::C::t1 ", "x", "tests/a.py::C::t2 ", "y")
	meta := Build(records, DefaultOptions())

	assert.Equal(t, map[int]bool{0: true, 2: true}, meta.CollapseMap.TestCases)
	assert.Equal(t, PhaseCollapse{Setup: true, Call: true, Teardown: true}, meta.CollapseMap.Phases[2])
}

func TestBuild_PhaseAndParentTagging(t *testing.T) {
	records := classify(t,
		"before",
		"tests/a.py::TestFlash::t1 ",
		"------ live log setup ------",
		"s",
		"------ live log call ------",
		"c",
		"------ call result: failed ------",
		"=== FAILURES ===",
		"f",
	)
	Build(records, DefaultOptions())

	assert.Equal(t, model.PhaseNone, records[0].Phase)
	assert.Empty(t, records[0].ParentTestCase)
	assert.Equal(t, "TestFlash", records[1].ParentTestCase)
	assert.Equal(t, model.PhaseSetup, records[3].Phase)
	assert.Equal(t, model.PhaseCall, records[5].Phase)
	assert.True(t, records[6].HasFailure)
	assert.False(t, records[5].HasFailure)
	assert.Equal(t, model.PhaseNone, records[8].Phase)
	assert.Empty(t, records[8].ParentTestCase)
}

func TestBuild_FinalSections(t *testing.T) {
	records := classify(t,
		"tests/a.py::C::t1 ",
		"body",
		"=== FAILURES ===",
		"f1",
		"f2",
		"=== short test summary info ===",
		"FAILED tests/a.py::C::t1",
	)
	meta := Build(records, DefaultOptions())

	assert.Equal(t, []int{3, 4}, meta.FinalSections[model.SectionFailures])
	assert.Equal(t, []int{6}, meta.FinalSections[model.SectionInfo])
	assert.Empty(t, meta.FinalSections[model.SectionErrors])
	assert.False(t, records[2].IsFinalSectionContent)
	assert.True(t, records[4].IsFinalSectionContent)
	assert.Equal(t, model.SectionInfo, records[6].ParentFinalSection)
	assert.False(t, records[1].IsFinalSectionContent)
}

func TestBuild_FailuresIndex(t *testing.T) {
	records := classify(t,
		"tests/a.py::C::t1 ",
		"tests/a.py::check_flash setup result: failed",
		"tests/b.py::other mentioned but fine",
		"tests/a.py::check_flash call result: failed",
	)
	meta := Build(records, DefaultOptions())
	assert.Equal(t, map[string][]int{"check_flash": {1, 3}}, meta.FailuresIndex)
}

func TestBuild_FoldRegion(t *testing.T) {
	records := classify(t,
		"tests/a.py::C::t1 ",
		"before",
		isocStart,
		"A",
		"B",
		isocEnd,
		"after",
	)
	meta := Build(records, DefaultOptions())

	blocks := meta.FoldGroups[0]
	require.Len(t, blocks, 1)
	items := blocks[0].Items
	require.Len(t, items, 3)

	assert.Nil(t, items[0].Fold)
	assert.Equal(t, rawIndex(t, records, "before"), items[0].Index)

	fold := items[1].Fold
	require.NotNil(t, fold)
	assert.Equal(t, FoldISOC, fold.Kind)
	assert.Equal(t, []int{2, 3, 4, 5}, fold.Lines())
	assert.True(t, records[2].IsFoldableHeader)

	assert.Nil(t, items[2].Fold)
	assert.Equal(t, rawIndex(t, records, "after"), items[2].Index)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, blocks[0].Lines())
}

func TestBuild_ResetNestedInISOC(t *testing.T) {
	records := classify(t,
		"tests/a.py::C::t1 ",
		isocStart,
		resetStart,
		resetLine,
		resetLine,
		"check continues",
		isocEnd,
	)
	meta := Build(records, DefaultOptions())

	blocks := meta.FoldGroups[0]
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Items, 1)

	outer := blocks[0].Items[0].Fold
	require.NotNil(t, outer)
	assert.Equal(t, FoldISOC, outer.Kind)
	require.Len(t, outer.Items, 4)

	inner := outer.Items[1].Fold
	require.NotNil(t, inner)
	assert.Equal(t, FoldReset, inner.Kind)
	assert.Equal(t, []int{2, 3, 4}, inner.Lines())
	assert.True(t, records[2].IsFoldableHeader)

	assert.Equal(t, 5, outer.Items[2].Index)
	assert.Equal(t, 6, outer.Items[3].Index)
}

func TestBuild_ISOCEndClosesInnerReset(t *testing.T) {
	records := classify(t,
		"tests/a.py::C::t1 ",
		isocStart,
		resetStart,
		resetLine,
		isocEnd,
	)
	meta := Build(records, DefaultOptions())

	outer := meta.FoldGroups[0][0].Items[0].Fold
	require.NotNil(t, outer)
	require.Len(t, outer.Items, 3)
	require.NotNil(t, outer.Items[1].Fold)
	assert.Equal(t, []int{2, 3}, outer.Items[1].Fold.Lines())
	assert.Equal(t, 4, outer.Items[2].Index)
}

func TestBuild_FoldClosesOnBoundaries(t *testing.T) {
	t.Run("blank line", func(t *testing.T) {
		records := classify(t, "tests/a.py::C::t1 ", isocStart, "A", "", "B")
		meta := Build(records, DefaultOptions())
		items := meta.FoldGroups[0][0].Items
		require.Len(t, items, 2)
		assert.Equal(t, []int{1, 2}, items[0].Fold.Lines())
		assert.Equal(t, 3, items[1].Index)
	})

	t.Run("test case header", func(t *testing.T) {
		records := classify(t, "tests/a.py::C::t1 ", resetStart, resetLine, "tests/a.py::C::t2 ", resetLine)
		meta := Build(records, DefaultOptions())
		require.Len(t, meta.FoldGroups[0][0].Items, 1)
		assert.Equal(t, []int{1, 2}, meta.FoldGroups[0][0].Items[0].Fold.Lines())
		require.Len(t, meta.FoldGroups[3][0].Items, 1)
		assert.Nil(t, meta.FoldGroups[3][0].Items[0].Fold)
	})

	t.Run("final section header", func(t *testing.T) {
		records := classify(t, "tests/a.py::C::t1 ", isocStart, "A", "=== ERRORS ===", "e")
		meta := Build(records, DefaultOptions())
		assert.Equal(t, []int{1, 2}, meta.FoldGroups[0][0].Items[0].Fold.Lines())
		assert.Equal(t, []int{4}, meta.FoldGroups[3][0].Lines())
	})

	t.Run("non channel line ends reset", func(t *testing.T) {
		records := classify(t, "tests/a.py::C::t1 ", resetStart, resetLine, "other")
		meta := Build(records, DefaultOptions())
		items := meta.FoldGroups[0][0].Items
		require.Len(t, items, 2)
		assert.Equal(t, FoldReset, items[0].Fold.Kind)
		assert.Equal(t, 3, items[1].Index)
	})

	t.Run("end of input", func(t *testing.T) {
		records := classify(t, "tests/a.py::C::t1 ", isocStart, "A")
		meta := Build(records, DefaultOptions())
		assert.Equal(t, []int{1, 2}, meta.FoldGroups[0][0].Items[0].Fold.Lines())
	})
}

func TestBuild_PhaseBlocks(t *testing.T) {
	records := classify(t,
		"tests/a.py::C::t1 ",
		"preamble",
		"------ live log setup ------",
		"s1",
		"------ live log call ------",
		"c1",
		"call result: failed",
	)
	meta := Build(records, DefaultOptions())

	blocks := meta.FoldGroups[0]
	require.Len(t, blocks, 3)
	assert.Equal(t, model.PhaseNone, blocks[0].Phase)
	assert.Equal(t, model.PhaseSetup, blocks[1].Phase)
	assert.Equal(t, []int{2, 3}, blocks[1].Lines())
	assert.Equal(t, model.PhaseCall, blocks[2].Phase)
	assert.True(t, blocks[2].HasFailure)
	assert.False(t, blocks[1].HasFailure)
}

func TestBuild_CustomResetChannel(t *testing.T) {
	channel := "/dev/ttyUSB_DBG_07"
	records := classify(t,
		"tests/a.py::C::t1 ",
		strings.ReplaceAll(resetStart, DefaultResetChannel, channel),
		strings.ReplaceAll(resetLine, DefaultResetChannel, channel),
		resetLine,
	)
	meta := Build(records, Options{ResetChannel: channel})

	items := meta.FoldGroups[0][0].Items
	require.Len(t, items, 2)
	assert.Equal(t, []int{1, 2}, items[0].Fold.Lines())
}

func TestBuild_EmptyTestCaseHasEmptyGroup(t *testing.T) {
	records := classify(t, "tests/a.py::C::t1 ")
	meta := Build(records, DefaultOptions())
	groups, ok := meta.FoldGroups[0]
	require.True(t, ok)
	assert.Empty(t, groups)
}

func TestTestClass(t *testing.T) {
	assert.Equal(t, "C", TestClass("tests/a.py::C::t1"))
	assert.Equal(t, "solo", TestClass("solo"))
}
