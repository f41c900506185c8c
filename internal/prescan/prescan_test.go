package prescan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/highlight"
	"github.com/newhook/diaglog/internal/model"
)

func scan(t *testing.T, input string) Result {
	t.Helper()
	return Scan(highlight.New(catalog.Default()), strings.Split(input, "\n"))
}

func TestMatchTestCaseStart(t *testing.T) {
	tests := []struct {
		line   string
		wantID string
		wantOK bool
	}{
		{"tests/a.py::C::t1 ", "tests/a.py::C::t1", true},
		{"tests/a.py::C::t1", "tests/a.py::C::t1", true},
		{"tests/sub-dir/a.py::Test<X>::test_y[param-1] PASSED", "tests/sub-dir/a.py::Test<X>::test_y[param-1]", true},
		{`tests\win\a.py::C::t1 `, `tests\win\a.py::C::t1`, true},
		{"tests/a.py::C::t1 -------- live log finish --------", "", false},
		{"tests/a.py::C::t1x.y", "", false},
		{" tests/a.py::C::t1 ", "", false},
		{"[2024-01-01] [INF] [m] tests/a.py::C::t1", "", false},
		{"tests/a.py::t1 ", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			id, ok := MatchTestCaseStart(tt.line)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestScan_Outcomes(t *testing.T) {
	input := strings.Join([]string{
		"tests/a.py::C::passes ",
		"[2024-01-01 00:00:00.000] [INF] [mod] all good",
		"tests/a.py::C::fails_call ",
		"------ call result: failed ------",
		"tests/a.py::C::skipped_wins ",
		"[2024-01-01 00:00:00.000] [ERR] [mod] boom",
		"  SKIPPED (needs hardware)",
		"tests/a.py::C::setup_skip ",
		"setup result: skipped",
		"tests/a.py::C::asserts ",
		"[Assert FAILED] expected 1",
		"tests/a.py::C::errors ",
		"[2024-01-01 00:00:00.000] [ERR] [mod] boom",
		"tests/a.py::C::times_out ",
		TimeoutMarker,
		"tests/a.py::C::teardown_fail ",
		"teardown result: failed",
	}, "\n")

	res := scan(t, input)
	want := map[string]model.Outcome{
		"tests/a.py::C::passes":        model.OutcomePassed,
		"tests/a.py::C::fails_call":    model.OutcomeFailed,
		"tests/a.py::C::skipped_wins":  model.OutcomeSkipped,
		"tests/a.py::C::setup_skip":    model.OutcomeSkipped,
		"tests/a.py::C::asserts":       model.OutcomeFailed,
		"tests/a.py::C::errors":        model.OutcomeFailed,
		"tests/a.py::C::times_out":     model.OutcomeFailed,
		"tests/a.py::C::teardown_fail": model.OutcomeFailed,
	}
	assert.Equal(t, want, res.Outcomes)
	assert.Equal(t, "tests/a.py::C::passes", res.Order[0])
	assert.Len(t, res.Order, len(want))
	assert.Empty(t, res.Anomalies)
}

func TestScan_TimeoutBeforeFirstTestCase(t *testing.T) {
	res := scan(t, "collecting ...\n"+TimeoutMarker+"\ntests/a.py::C::t1 \nok")

	require.Len(t, res.Anomalies, 1)
	assert.Equal(t, 2, res.Anomalies[0].Line)
	assert.Equal(t, AnomalyTimeoutOutsideTestCase, res.Anomalies[0].Kind)
	assert.Equal(t, model.OutcomePassed, res.Outcomes["tests/a.py::C::t1"])
}

func TestScan_RepeatedIDKeepsLastWindow(t *testing.T) {
	res := scan(t, "tests/a.py::C::t1 \ncall result: failed\ntests/a.py::C::t1 \nfine")
	assert.Equal(t, model.OutcomePassed, res.Outcomes["tests/a.py::C::t1"])
	assert.Equal(t, []string{"tests/a.py::C::t1"}, res.Order)
}

func TestScan_NoTestCases(t *testing.T) {
	res := scan(t, "just\nsome\nlines")
	assert.Empty(t, res.Outcomes)
	assert.Empty(t, res.Order)
	assert.Equal(t, model.OutcomePassed, res.Outcome("tests/a.py::C::missing"))
}

func TestScan_WindowEndsAtNextStart(t *testing.T) {
	input := "tests/a.py::C::t1 \nx\ny\ncall result: failed\nz\ntests/a.py::C::t2 \nok"
	whole := scan(t, input)
	assert.Equal(t, model.OutcomeFailed, whole.Outcome("tests/a.py::C::t1"))
	assert.Equal(t, model.OutcomePassed, whole.Outcome("tests/a.py::C::t2"))
}
