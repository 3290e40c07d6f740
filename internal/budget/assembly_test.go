package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"presupuestor/internal/agents"
	"presupuestor/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// opencensus (pulled in via the genai SDK) starts a permanent worker
	// goroutine at init that is not a leak.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type fakeExtractor struct {
	subtasks []types.Subtask
	err      error
}

func (f *fakeExtractor) Extract(ctx context.Context, narrative string) ([]types.Subtask, error) {
	return f.subtasks, f.err
}

// pricingResolver prices every subtask at a fixed unit price, optionally
// delaying or panicking on selected queries.
type pricingResolver struct {
	unitPrice float64
	delays    map[string]time.Duration
	panicOn   string
}

func (f *pricingResolver) ResolveItem(ctx context.Context, task types.Subtask, chapterContext string) types.LineItem {
	if d, ok := f.delays[task.SearchQuery]; ok {
		time.Sleep(d)
	}
	if task.SearchQuery == f.panicOn {
		panic("resolver blew up")
	}
	li := types.NewPartida("C-1", task.SearchQuery, task.Unit, task.Quantity, f.unitPrice)
	li.OriginalTask = task.SearchQuery
	return li
}

type fakeValidator struct {
	report *types.ValidationReport
}

func (f *fakeValidator) Validate(ctx context.Context, descriptions []string) *types.ValidationReport {
	return f.report
}

type fakeArchitect struct {
	plans []agents.ChapterPlan
}

func (f *fakeArchitect) PlanChapters(ctx context.Context, narrative string) []agents.ChapterPlan {
	return f.plans
}

type recordingSink struct {
	mu     sync.Mutex
	events []string
	orders []int
}

func (r *recordingSink) Emit(sessionID, eventType string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	if eventType == types.EventItemResolved {
		r.orders = append(r.orders, payload["order"].(int))
	}
}

type panickingSink struct{}

func (panickingSink) Emit(sessionID, eventType string, payload map[string]interface{}) {
	panic("sink down")
}

func twoSubtasks() []types.Subtask {
	return []types.Subtask{
		{SearchQuery: "instalacion de parquet", Quantity: 20, Unit: "m2"},
		{SearchQuery: "pintura plastica", Quantity: 50, Unit: "m2"},
	}
}

func TestGenerate_HappyPath(t *testing.T) {
	sink := &recordingSink{}
	a := NewAssembler(
		&fakeExtractor{subtasks: twoSubtasks()},
		&pricingResolver{unitPrice: 10},
		&fakeValidator{report: &types.ValidationReport{IsValid: true, OverallScore: 95}},
		nil,
		sink,
		stdConfig(),
	)

	b, err := a.Generate(context.Background(), "session-1", "reformar piso")
	require.NoError(t, err)

	require.Len(t, b.Chapters, 1)
	assert.Equal(t, 2, len(b.Chapters[0].Items))
	// 20*10 + 50*10 = 700 execution cost
	assert.Equal(t, 700.0, b.CostBreakdown.MaterialExecutionPrice)
	assert.Equal(t, 91.0, b.CostBreakdown.OverheadExpenses)
	assert.Equal(t, b.CostBreakdown.Total, b.TotalEstimated)
	require.NotNil(t, b.Validation)
	assert.True(t, b.Validation.IsValid)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, "reformar piso", b.Narrative)

	assert.Equal(t, []string{
		types.EventSubtasksExtracted,
		types.EventChapterStart,
		types.EventItemResolved,
		types.EventItemResolved,
		types.EventCompleted,
	}, sink.events)
}

func TestGenerate_ChapterTotalMatchesItems(t *testing.T) {
	a := NewAssembler(
		&fakeExtractor{subtasks: twoSubtasks()},
		&pricingResolver{unitPrice: 13.33},
		nil, nil, nil, stdConfig(),
	)

	b, err := a.Generate(context.Background(), "s", "x")
	require.NoError(t, err)

	var sum float64
	for _, it := range b.Chapters[0].Items {
		sum += it.TotalPrice
	}
	assert.InDelta(t, b.Chapters[0].TotalPrice, sum, 1e-6)
}

func TestGenerate_NoSubtasksIsFatal(t *testing.T) {
	a := NewAssembler(&fakeExtractor{}, &pricingResolver{}, nil, nil, nil, stdConfig())

	b, err := a.Generate(context.Background(), "s", "hola")
	assert.Nil(t, b, "no partial budget on extraction failure")
	assert.ErrorIs(t, err, ErrNoSubtasks)
}

func TestGenerate_ExtractionErrorPropagates(t *testing.T) {
	boom := errors.New("llm unavailable")
	a := NewAssembler(&fakeExtractor{err: boom}, &pricingResolver{}, nil, nil, nil, stdConfig())

	_, err := a.Generate(context.Background(), "s", "x")
	assert.ErrorIs(t, err, boom)
}

func TestGenerate_ConcurrentKeepsSubtaskOrder(t *testing.T) {
	subtasks := []types.Subtask{
		{SearchQuery: "a", Quantity: 1, Unit: "ud"},
		{SearchQuery: "b", Quantity: 1, Unit: "ud"},
		{SearchQuery: "c", Quantity: 1, Unit: "ud"},
		{SearchQuery: "d", Quantity: 1, Unit: "ud"},
	}
	sink := &recordingSink{}
	a := NewAssembler(
		&fakeExtractor{subtasks: subtasks},
		// First subtask finishes last; order must still follow extraction.
		&pricingResolver{unitPrice: 5, delays: map[string]time.Duration{"a": 50 * time.Millisecond}},
		nil, nil, sink, stdConfig(),
	)
	a.Concurrency = 4

	b, err := a.Generate(context.Background(), "s", "x")
	require.NoError(t, err)

	items := b.Chapters[0].Items
	require.Len(t, items, 4)
	assert.Equal(t, "a", items[0].OriginalTask)
	assert.Equal(t, "d", items[3].OriginalTask)
	assert.Equal(t, []int{0, 1, 2, 3}, sink.orders, "item events follow subtask order, not completion order")
}

func TestGenerate_PanickedSubtaskBecomesPlaceholder(t *testing.T) {
	a := NewAssembler(
		&fakeExtractor{subtasks: twoSubtasks()},
		&pricingResolver{unitPrice: 10, panicOn: "pintura plastica"},
		nil, nil, nil, stdConfig(),
	)

	b, err := a.Generate(context.Background(), "s", "x")
	require.NoError(t, err, "one bad subtask must not abort the batch")

	items := b.Chapters[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, 200.0, items[0].TotalPrice)
	assert.Zero(t, items[1].TotalPrice)
	assert.True(t, items[1].IsEstimate)
}

func TestGenerate_SinkFailureDoesNotAbort(t *testing.T) {
	a := NewAssembler(
		&fakeExtractor{subtasks: twoSubtasks()},
		&pricingResolver{unitPrice: 10},
		nil, nil, panickingSink{}, stdConfig(),
	)

	b, err := a.Generate(context.Background(), "s", "x")
	require.NoError(t, err)
	assert.Len(t, b.Chapters[0].Items, 2)
}

func TestGenerateByChapters(t *testing.T) {
	sink := &recordingSink{}
	a := NewAssembler(
		&fakeExtractor{},
		&pricingResolver{unitPrice: 10},
		nil,
		&fakeArchitect{plans: []agents.ChapterPlan{
			{Name: "Demoliciones", Tasks: []types.Subtask{{SearchQuery: "demolicion tabique", Quantity: 8, Unit: "m2"}}},
			{Name: "Pintura", Tasks: []types.Subtask{
				{SearchQuery: "pintura paredes", Quantity: 40, Unit: "m2"},
				{SearchQuery: "pintura techos", Quantity: 20, Unit: "m2"},
			}},
		}},
		sink,
		stdConfig(),
	)

	b, err := a.GenerateByChapters(context.Background(), "s", "reforma integral")
	require.NoError(t, err)

	require.Len(t, b.Chapters, 2)
	assert.Equal(t, "Demoliciones", b.Chapters[0].Name)
	assert.Equal(t, 1, b.Chapters[0].Order)
	assert.Equal(t, 2, b.Chapters[1].Order)
	// 80 + 400 + 200 = 680 execution cost across chapters
	assert.Equal(t, 680.0, b.CostBreakdown.MaterialExecutionPrice)

	assert.Equal(t, []string{
		types.EventSubtasksExtracted,
		types.EventChapterStart,
		types.EventItemResolved,
		types.EventChapterStart,
		types.EventItemResolved,
		types.EventItemResolved,
		types.EventCompleted,
	}, sink.events)
}

func TestGenerateByChapters_FallsBackToFlat(t *testing.T) {
	a := NewAssembler(
		&fakeExtractor{subtasks: twoSubtasks()},
		&pricingResolver{unitPrice: 10},
		nil,
		&fakeArchitect{}, // planning yields nothing
		nil,
		stdConfig(),
	)

	b, err := a.GenerateByChapters(context.Background(), "s", "x")
	require.NoError(t, err)
	require.Len(t, b.Chapters, 1)
	assert.Equal(t, defaultChapterName, b.Chapters[0].Name)
}
