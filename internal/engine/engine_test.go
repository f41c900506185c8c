package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newhook/diaglog/internal/catalog"
	"github.com/newhook/diaglog/internal/model"
)

const testTimeout = 5 * time.Second

func newTestEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.LoadCatalog = func(string) *catalog.Catalog { return catalog.Default() }
	if mutate != nil {
		mutate(&opts)
	}
	e := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e.Start(ctx)
	return e
}

// collect drains a run, validating the message order as it goes.
func collect(t *testing.T, out <-chan Message) []Message {
	t.Helper()
	var (
		msgs    []Message
		checker ProtocolChecker
	)
	timeout := time.After(testTimeout)
	for {
		select {
		case m, ok := <-out:
			if !ok {
				require.NoError(t, checker.Done())
				return msgs
			}
			require.NoError(t, checker.Observe(m))
			if m.Batch != nil {
				m.Batch.Payload = append(json.RawMessage(nil), m.Batch.Payload...)
			}
			msgs = append(msgs, m)
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}
}

func process(t *testing.T, e *Engine, input string) []Message {
	t.Helper()
	out, err := e.Process(context.Background(), []byte(input))
	require.NoError(t, err)
	return collect(t, out)
}

func metaOf(t *testing.T, msgs []Message) *Meta {
	t.Helper()
	for _, m := range msgs {
		if m.Type == TypeMeta {
			return m.Meta
		}
	}
	t.Fatal("no meta message")
	return nil
}

func batchRecords(t *testing.T, msgs []Message) []model.Record {
	t.Helper()
	var out []model.Record
	for _, m := range msgs {
		if m.Type != TypeBatch {
			continue
		}
		var records []model.Record
		require.NoError(t, json.Unmarshal(m.Batch.Payload, &records))
		out = append(out, records...)
	}
	return out
}

func recordByRaw(t *testing.T, records []model.Record, raw string) model.Record {
	t.Helper()
	for _, r := range records {
		if r.Raw == raw {
			return r
		}
	}
	t.Fatalf("no record %q", raw)
	return model.Record{}
}

func TestProcess_RejectsBinary(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.Process(context.Background(), []byte{0xff, 0xfe, 'a'})
	assert.ErrorIs(t, err, ErrNotText)

	_, err = e.Process(context.Background(), []byte("abc\x00def"))
	assert.ErrorIs(t, err, ErrNotText)
}

func TestProcess_MessageOrder(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 2 })

	msgs := process(t, e, "tests/a.py::C::t1 \nline one\nline two\n\nline three\n")

	require.NotEmpty(t, msgs)
	first := msgs[0]
	require.Equal(t, TypeProgress, first.Type)
	assert.Equal(t, PhaseStart, first.Progress.Phase)
	assert.Equal(t, 5, first.Progress.TotalLines)
	assert.Equal(t, 2, first.Progress.EstimatedChunkSize)

	last := msgs[len(msgs)-1]
	require.Equal(t, TypeComplete, last.Type)
	assert.Equal(t, 5, last.Complete.TotalLines)
	assert.Equal(t, 4, last.Complete.Records)

	for _, m := range msgs {
		assert.Equal(t, first.RunID, m.RunID)
	}
}

func TestProcess_DistinctRunIDs(t *testing.T) {
	e := newTestEngine(t, nil)
	a := process(t, e, "x\n")
	b := process(t, e, "x\n")
	assert.NotEqual(t, a[0].RunID, b[0].RunID)
}

func TestProcess_EmptyInput(t *testing.T) {
	e := newTestEngine(t, nil)
	msgs := process(t, e, "")

	types := make([]MessageType, len(msgs))
	for i, m := range msgs {
		types[i] = m.Type
	}
	assert.Equal(t, []MessageType{TypeProgress, TypeMeta, TypeComplete}, types)
	assert.Equal(t, 0, msgs[2].Complete.Records)
}

func TestProcess_PassingTestCase(t *testing.T) {
	e := newTestEngine(t, nil)
	msgs := process(t, e, strings.Join([]string{
		"tests/test_boot.py::TestBoot::test_cold ",
		"[2024-01-01 00:00:00.000] [INF] [esys] EsysReturnCode.OK",
	}, "\n"))

	records := batchRecords(t, msgs)
	require.Len(t, records, 2)

	header := records[0]
	assert.True(t, header.IsTestCaseHeader)
	assert.Equal(t, model.CategoryTestCase, header.Category)
	assert.Equal(t, model.OutcomePassed, header.Outcome)
	assert.Equal(t, "INFO", header.Level)

	line := records[1]
	assert.Equal(t, "tests/test_boot.py::TestBoot::test_cold", line.CurrentTestCase)
	assert.Equal(t, "INFO", line.Level)
	assert.Equal(t, "esys", line.Module)

	meta := metaOf(t, msgs)
	assert.Equal(t, map[string]model.Outcome{"tests/test_boot.py::TestBoot::test_cold": model.OutcomePassed}, meta.Outcomes)
	assert.Equal(t, []string{"tests/test_boot.py::TestBoot::test_cold"}, meta.Order)
}

func TestProcess_FailingTestCaseFlaggedBeforeFailure(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 1 })
	msgs := process(t, e, strings.Join([]string{
		"tests/a.py::TestA::test_one ",
		"------ live log call ------",
		"step",
		"call result: failed",
		"tests/a.py::TestA::test_two ",
		"fine",
	}, "\n"))

	records := batchRecords(t, msgs)
	one := recordByRaw(t, records, "tests/a.py::TestA::test_one ")
	two := recordByRaw(t, records, "tests/a.py::TestA::test_two ")
	assert.Equal(t, model.OutcomeFailed, one.Outcome)
	assert.Equal(t, model.OutcomePassed, two.Outcome)

	meta := metaOf(t, msgs)
	assert.Equal(t, model.OutcomeFailed, meta.Outcomes["tests/a.py::TestA::test_one"])
	assert.True(t, meta.Records[3].HasFailure)
	assert.False(t, meta.Records[2].HasFailure)
	assert.Equal(t, model.PhaseCall, meta.Records[3].Phase)
}

func TestProcess_SkippedTestCaseSuppressesBody(t *testing.T) {
	e := newTestEngine(t, nil)
	msgs := process(t, e, strings.Join([]string{
		"tests/a.py::TestA::test_skip ",
		"SKIPPED (requires hardware)",
		"[2024-01-01 00:00:00.000] [ERR] [esys] should be hidden",
		"tests/a.py::TestA::test_next ",
		"visible",
	}, "\n"))

	records := batchRecords(t, msgs)
	raws := make([]string, len(records))
	for i, r := range records {
		raws[i] = r.Raw
	}
	assert.Equal(t, []string{
		"tests/a.py::TestA::test_skip ",
		"tests/a.py::TestA::test_next ",
		"visible",
	}, raws)
	assert.Equal(t, model.OutcomeSkipped, records[0].Outcome)
}

func TestProcess_FinalSections(t *testing.T) {
	e := newTestEngine(t, nil)
	msgs := process(t, e, strings.Join([]string{
		"tests/a.py::TestA::test_one ",
		"body",
		"=== FAILURES ===",
		"______ TestA.test_one ______",
		"E   AssertionError: boom",
		"=== short test summary info ===",
		"FAILED tests/a.py::TestA::test_one",
	}, "\n"))

	meta := metaOf(t, msgs)
	assert.Equal(t, []int{3, 4}, meta.FinalSections[model.SectionFailures])
	assert.Equal(t, []int{6}, meta.FinalSections[model.SectionInfo])

	records := batchRecords(t, msgs)
	header := recordByRaw(t, records, "=== FAILURES ===")
	assert.True(t, header.IsFinalSectionHeader)
	assert.Equal(t, model.SectionFailures.Category(), header.Category)
}

func TestProcess_ChunkSizeDoesNotChangeRecords(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "tests/a.py::TestA::test_%d \n", i)
		b.WriteString("[2024-01-01 00:00:00.000] [INF] [esys] EsysReturnCode.OK\n")
		if i%3 == 0 {
			b.WriteString("call result: failed\n")
		}
	}
	b.WriteString("=== FAILURES ===\nE   AssertionError: x\n")
	input := b.String()

	whole := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 10000 })
	small := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 7 })

	a := process(t, whole, input)
	c := process(t, small, input)
	assert.Equal(t, batchRecords(t, a), batchRecords(t, c))
	assert.Equal(t, metaOf(t, a).FoldGroups, metaOf(t, c).FoldGroups)
}

func TestProcess_SecondRunHitsCache(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 2 })
	input := "a\nb\nc\nd\ne\n"

	first := process(t, e, input)
	second := process(t, e, input)

	assert.Equal(t, batchRecords(t, first), batchRecords(t, second))
	assert.Equal(t, 0.0, first[len(first)-1].Complete.CacheHitRate)
	assert.Equal(t, 1.0, second[len(second)-1].Complete.CacheHitRate)
	for _, m := range second {
		if m.Type == TypeBatch {
			assert.True(t, m.Batch.Cached)
		}
	}
}

func TestProcess_WaitsForCatalog(t *testing.T) {
	release := make(chan struct{})
	e := newTestEngine(t, func(o *Options) {
		o.LoadCatalog = func(string) *catalog.Catalog {
			<-release
			return catalog.Default()
		}
	})

	out, err := e.Process(context.Background(), []byte("line\n"))
	require.NoError(t, err)

	select {
	case <-out:
		t.Fatal("message before the catalog was loaded")
	case <-e.Ready():
		t.Fatal("ready before the catalog was loaded")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	msgs := collect(t, out)
	assert.Equal(t, TypeComplete, msgs[len(msgs)-1].Type)
	assert.NotNil(t, e.Catalog())
}

func TestProcess_CancelStopsRun(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 1 })
	input := strings.Repeat("line\n", 200)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out, err := e.Process(ctx, []byte(input))
	require.NoError(t, err)

	var batches int
	var sawComplete bool
	timeout := time.After(testTimeout)
	for done := false; !done; {
		select {
		case m, ok := <-out:
			if !ok {
				done = true
				break
			}
			switch m.Type {
			case TypeBatch:
				batches++
				if batches == 3 {
					cancel()
				}
			case TypeComplete:
				sawComplete = true
			}
		case <-timeout:
			t.Fatal("cancelled run did not close its channel")
		}
	}
	assert.False(t, sawComplete)
	assert.Less(t, batches, 200)

	// The engine keeps serving after a cancelled run.
	msgs := process(t, e, "next\n")
	assert.Equal(t, TypeComplete, msgs[len(msgs)-1].Type)
}

func TestProcess_ClearCacheDuringRun(t *testing.T) {
	e := newTestEngine(t, func(o *Options) { o.Scheduler.ChunkLines = 2 })
	input := strings.Repeat("line\n", 20)
	process(t, e, input)

	out, err := e.Process(context.Background(), []byte(input))
	require.NoError(t, err)

	var checker ProtocolChecker
	var cached []bool
	for m := range out {
		require.NoError(t, checker.Observe(m))
		if m.Type != TypeBatch {
			continue
		}
		cached = append(cached, m.Batch.Cached)
		if m.Batch.Chunk == 3 {
			require.NoError(t, e.ClearCache(context.Background()))
		}
	}
	require.NoError(t, checker.Done())
	require.Len(t, cached, 10)
	assert.Equal(t, []bool{true, true, true}, cached[:3])
	assert.False(t, cached[4])
}

func TestProcess_AfterStop(t *testing.T) {
	opts := DefaultOptions()
	opts.LoadCatalog = func(string) *catalog.Catalog { return catalog.Default() }
	e := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)
	<-e.Ready()
	cancel()
	<-e.Done()

	_, err := e.Process(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReloadCatalog(t *testing.T) {
	custom := catalog.New([]catalog.Rule{{
		Name:    "Custom Marker",
		Pattern: `MARKER`,
		Type:    "error",
		Color:   "#ff0000",
	}}, "custom")

	e := newTestEngine(t, func(o *Options) {
		o.LoadCatalog = func(path string) *catalog.Catalog {
			if path == "custom" {
				return custom
			}
			return catalog.Default()
		}
	})
	<-e.Ready()

	before := batchRecords(t, process(t, e, "a MARKER here\n"))
	assert.Equal(t, model.CategoryStandard, before[0].Category)

	e.ReloadCatalog("custom")
	assert.Equal(t, "custom", e.Catalog().Source())

	after := batchRecords(t, process(t, e, "a MARKER here\n"))
	assert.Equal(t, model.Category("error"), after[0].Category)
}

func TestProcess_MalformedRulesStillClassify(t *testing.T) {
	e := newTestEngine(t, func(o *Options) {
		o.LoadCatalog = catalog.Load
		o.RulesPath = t.TempDir() + "/missing.json"
	})
	<-e.Ready()
	require.Error(t, e.Catalog().FallbackReason())

	records := batchRecords(t, process(t, e, "[2024-01-01 00:00:00.000] [INF] [esys] EsysReturnCode.OK\n"))
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].Spans)
}

func TestBatchPayloadMatchesRecords(t *testing.T) {
	e := newTestEngine(t, nil)
	out, err := e.Process(context.Background(), []byte("one\ntwo\n"))
	require.NoError(t, err)

	for m := range out {
		if m.Type != TypeBatch {
			continue
		}
		want, err := json.Marshal(m.Batch.Records)
		require.NoError(t, err)
		assert.JSONEq(t, string(want), string(m.Batch.Payload))
	}
}

func TestIsText(t *testing.T) {
	assert.True(t, IsText([]byte("héllo\nworld")))
	assert.True(t, IsText(nil))
	assert.False(t, IsText([]byte{0xc3}))
	assert.False(t, IsText([]byte("a\x00")))
}
