package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/model"
)

func TestDetect_CatalogThenMatchOrder(t *testing.T) {
	c := New(catalog.Default())
	spans := c.Detect("[Assert FAILED] x [ERR] y [ERR]")

	require.Len(t, spans, 3)
	assert.Equal(t, "error", spans[0].Type)
	assert.Equal(t, "error", spans[1].Type)
	assert.Equal(t, "assertion", spans[2].Type)
	assert.Less(t, spans[0].Start, spans[1].Start)
}

func TestDetect_SkipsHeaderRules(t *testing.T) {
	c := New(catalog.Default())
	spans := c.Detect("tests/a.py::C::t1 ")
	for _, s := range spans {
		assert.NotEqual(t, string(catalog.TypeTestCase), s.Type)
	}
}

func TestDetect_OverlappingRules(t *testing.T) {
	c := New(catalog.Default())
	spans := c.Detect("Payload: 71 01 10 AC 00 02")

	var types []string
	for _, s := range spans {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, "RSU_RESPONSE_WITH_MULTI_DESC")
}

func TestDetectTypes(t *testing.T) {
	c := New(catalog.Default())
	spans := c.DetectTypes("[ERR] [Assert FAILED] boom", catalog.TypeAssertion)
	require.Len(t, spans, 1)
	assert.Equal(t, "assertion", spans[0].Type)
}

func TestDetectByType_Header(t *testing.T) {
	c := New(catalog.Default())
	spans := c.DetectByType("tests/a.py::C::t1 ", catalog.TypeTestCaseFailed)
	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 17, spans[0].End)
	assert.Equal(t, "testcase-failed", spans[0].Type)
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []model.Span
		want []model.Span
	}{
		{"empty", nil, nil},
		{
			"overlapping",
			[]model.Span{{Start: 4, End: 9, Type: "b"}, {Start: 0, End: 5, Type: "a"}},
			[]model.Span{{Start: 0, End: 9, Type: "a"}},
		},
		{
			"adjacent",
			[]model.Span{{Start: 0, End: 3, Type: "a"}, {Start: 3, End: 6, Type: "a"}},
			[]model.Span{{Start: 0, End: 6, Type: "a"}},
		},
		{
			"disjoint",
			[]model.Span{{Start: 5, End: 6, Type: "a"}, {Start: 0, End: 2, Type: "a"}},
			[]model.Span{{Start: 0, End: 2, Type: "a"}, {Start: 5, End: 6, Type: "a"}},
		},
		{
			"contained",
			[]model.Span{{Start: 0, End: 10, Type: "a"}, {Start: 2, End: 4, Type: "a"}},
			[]model.Span{{Start: 0, End: 10, Type: "a"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.in))
		})
	}
}

func TestClassify_Priority(t *testing.T) {
	c := New(catalog.Default())

	assert.Equal(t, model.CategoryStandard, c.Classify(nil))
	assert.Equal(t, model.Category("error"), c.Classify(c.Detect("[Assert FAILED] [ERR] boom")))
	assert.Equal(t, model.Category("assertion"), c.Classify(c.Detect("[Expect FAILED] [Assert FAILED]")))
	assert.Equal(t, model.Category("EsysReturnCodeOther"), c.Classify(c.Detect("EsysReturnCode.TIMEOUT")))
}

func TestClassify_UnrankedTypesFollowRegistration(t *testing.T) {
	cat := catalog.New([]catalog.Rule{
		{Name: "first", Pattern: "alpha", Type: "zz-first"},
		{Name: "second", Pattern: "beta", Type: "aa-second"},
	}, "test")
	c := New(cat)
	assert.Equal(t, model.Category("zz-first"), c.Classify(c.Detect("beta alpha")))
}

func TestClassifier_SurvivesBrokenRule(t *testing.T) {
	cat := catalog.New([]catalog.Rule{
		{Name: "broken", Pattern: "(?<", Type: "broken"},
		{Name: "Error", Pattern: `\[ERR\]`, Type: catalog.TypeError},
	}, "test")
	c := New(cat)
	assert.Equal(t, model.Category("error"), c.Classify(c.Detect("[ERR] still works")))
}
