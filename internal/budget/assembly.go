package budget

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"presupuestor/internal/agents"
	"presupuestor/internal/config"
	"presupuestor/internal/logging"
	"presupuestor/internal/types"
)

// =============================================================================
// BUDGET ASSEMBLY & FINANCIAL ROLL-UP
// =============================================================================
// The generation entry point: narrative -> subtasks -> resolved items ->
// chapters -> financial roll-up -> Budget. Extraction is the only hard
// failure; everything after degrades per-item.

// ErrNoSubtasks is returned when the narrative yields nothing to price.
var ErrNoSubtasks = errors.New("could not extract tasks")

const defaultChapterName = "Presupuesto"

type extractorAgent interface {
	Extract(ctx context.Context, narrative string) ([]types.Subtask, error)
}

type validatorAgent interface {
	Validate(ctx context.Context, itemDescriptions []string) *types.ValidationReport
}

type architectAgent interface {
	PlanChapters(ctx context.Context, narrative string) []agents.ChapterPlan
}

type itemResolver interface {
	ResolveItem(ctx context.Context, task types.Subtask, chapterContext string) types.LineItem
}

// Assembler owns the subtask-to-budget lifecycle for a generation run.
type Assembler struct {
	extractor extractorAgent
	resolver  itemResolver
	validator validatorAgent
	architect architectAgent
	sink      types.EventSink
	cfg       config.BudgetConfig

	// Concurrency bounds the parallel subtask resolutions. 1 means strict
	// sequential processing in extraction order, which also respects
	// upstream API rate limits.
	Concurrency int
}

func NewAssembler(extractor extractorAgent, resolver itemResolver, validator validatorAgent, architect architectAgent, sink types.EventSink, cfg config.BudgetConfig) *Assembler {
	if sink == nil {
		sink = NopSink{}
	}
	return &Assembler{
		extractor:   extractor,
		resolver:    resolver,
		validator:   validator,
		architect:   architect,
		sink:        sink,
		cfg:         cfg,
		Concurrency: 1,
	}
}

// Generate produces a single-chapter budget from the narrative. The only
// fatal condition is a narrative with no extractable tasks.
func (a *Assembler) Generate(ctx context.Context, sessionID, narrative string) (*types.Budget, error) {
	timer := logging.StartTimer(logging.CategoryAssembly, "generate")
	defer timer.Stop()

	subtasks, err := a.extractor.Extract(ctx, narrative)
	if err != nil {
		return nil, err
	}
	if len(subtasks) == 0 {
		return nil, ErrNoSubtasks
	}
	a.emit(sessionID, types.EventSubtasksExtracted, map[string]interface{}{"count": len(subtasks)})

	a.emit(sessionID, types.EventChapterStart, map[string]interface{}{"name": defaultChapterName, "order": 1})
	items := a.resolveAll(ctx, sessionID, subtasks, "")

	chapter := types.NewChapter(defaultChapterName, 1, items)
	return a.finish(ctx, sessionID, narrative, []types.Chapter{chapter})
}

// GenerateByChapters first derives named chapters from the narrative, then
// resolves each chapter's tasks with the chapter name as search context.
// When planning fails it falls back to the flat single-chapter path.
func (a *Assembler) GenerateByChapters(ctx context.Context, sessionID, narrative string) (*types.Budget, error) {
	if a.architect == nil {
		return a.Generate(ctx, sessionID, narrative)
	}
	plans := a.architect.PlanChapters(ctx, narrative)
	if len(plans) == 0 {
		logging.AssemblyWarn("Chapter planning produced nothing, falling back to flat assembly")
		return a.Generate(ctx, sessionID, narrative)
	}

	var total int
	for _, p := range plans {
		total += len(p.Tasks)
	}
	a.emit(sessionID, types.EventSubtasksExtracted, map[string]interface{}{"count": total})

	chapters := make([]types.Chapter, 0, len(plans))
	for i, plan := range plans {
		a.emit(sessionID, types.EventChapterStart, map[string]interface{}{"name": plan.Name, "order": i + 1})
		items := a.resolveAll(ctx, sessionID, plan.Tasks, plan.Name)
		chapters = append(chapters, types.NewChapter(plan.Name, i+1, items))
	}
	return a.finish(ctx, sessionID, narrative, chapters)
}

// resolveAll resolves every subtask into exactly one line item. Resolution
// may fan out, but emitted item events and the returned slice always follow
// extraction order, never completion order.
func (a *Assembler) resolveAll(ctx context.Context, sessionID string, subtasks []types.Subtask, chapterContext string) []types.LineItem {
	items := make([]types.LineItem, len(subtasks))

	if a.Concurrency <= 1 {
		for i, st := range subtasks {
			items[i] = a.resolveSafe(ctx, st, chapterContext)
			a.emitItem(sessionID, i, items[i])
		}
		return items
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Concurrency)
	for i, st := range subtasks {
		g.Go(func() error {
			items[i] = a.resolveSafe(gctx, st, chapterContext)
			return nil
		})
	}
	// Workers never return errors; Wait is a pure fan-in barrier.
	_ = g.Wait()

	for i := range items {
		a.emitItem(sessionID, i, items[i])
	}
	return items
}

// resolveSafe guarantees one line item per subtask. A panicking resolution
// becomes a zero-priced estimate placeholder instead of aborting the batch.
func (a *Assembler) resolveSafe(ctx context.Context, st types.Subtask, chapterContext string) (item types.LineItem) {
	defer func() {
		if r := recover(); r != nil {
			logging.AssemblyWarn("Resolution panicked for %q: %v", st.SearchQuery, r)
			item = types.NewPartida("", st.SearchQuery, st.Unit, st.Quantity, 0)
			item.OriginalTask = st.SearchQuery
			item.Note = "Sin precio: fallo interno durante la resolucion"
			item.IsEstimate = true
		}
	}()
	return a.resolver.ResolveItem(ctx, st, chapterContext)
}

// finish runs the advisory validation, the financial roll-up, and the
// completion event, then assembles the Budget aggregate.
func (a *Assembler) finish(ctx context.Context, sessionID, narrative string, chapters []types.Chapter) (*types.Budget, error) {
	var executionPrice float64
	var descriptions []string
	for _, ch := range chapters {
		executionPrice += ch.TotalPrice
		for _, it := range ch.Items {
			descriptions = append(descriptions, it.Description)
		}
	}

	breakdown := ComputeBreakdown(executionPrice, a.cfg)

	var report *types.ValidationReport
	if a.validator != nil {
		report = a.validator.Validate(ctx, descriptions)
	}

	a.emit(sessionID, types.EventCompleted, map[string]interface{}{
		"total":    breakdown.Total,
		"chapters": len(chapters),
		"items":    len(descriptions),
	})
	logging.Assembly("Budget assembled: %d chapters, %d items, total %.2f EUR",
		len(chapters), len(descriptions), breakdown.Total)

	return &types.Budget{
		ID:             uuid.NewString(),
		Narrative:      narrative,
		Chapters:       chapters,
		CostBreakdown:  breakdown,
		TotalEstimated: breakdown.Total,
		Validation:     report,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (a *Assembler) emitItem(sessionID string, index int, item types.LineItem) {
	a.emit(sessionID, types.EventItemResolved, map[string]interface{}{
		"order":       index,
		"description": item.Description,
		"total_price": item.TotalPrice,
		"is_estimate": item.IsEstimate,
	})
}

// emit shields generation from a misbehaving sink: progress is advisory and
// must never abort a run.
func (a *Assembler) emit(sessionID, eventType string, payload map[string]interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logging.AssemblyWarn("Event sink panicked on %s: %v", eventType, r)
		}
	}()
	a.sink.Emit(sessionID, eventType, payload)
}
