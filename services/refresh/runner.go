package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"

	"smartlists/models"
	"smartlists/services/rules"
	"smartlists/services/snapshot"
)

// Materializer writes the computed membership of a list.
type Materializer interface {
	Materialize(ctx context.Context, list models.SmartList, itemIDs []string) error
}

// RunRecorder keeps the outcome of each pass.
type RunRecorder interface {
	RecordRun(ctx context.Context, run models.RefreshRun) (int64, error)
}

// Config tunes a Runner.
type Config struct {
	Timeout             time.Duration
	Workers             int
	SimilarityMinShared int
	Now                 func() time.Time
}

// Runner recomputes a list from the live catalog and hands the result to a
// Materializer.
type Runner struct {
	library      snapshot.Library
	builder      *snapshot.Builder
	materializer Materializer
	recorder     RunRecorder
	cfg          Config
	log          *slog.Logger
}

func NewRunner(library snapshot.Library, builder *snapshot.Builder, materializer Materializer, recorder RunRecorder, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SimilarityMinShared <= 0 {
		cfg.SimilarityMinShared = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{
		library:      library,
		builder:      builder,
		materializer: materializer,
		recorder:     recorder,
		cfg:          cfg,
		log:          logger.With("component", "refresh"),
	}
}

// RefreshList runs one full pass for list and reports success with a short
// message for the run log.
func (r *Runner) RefreshList(ctx context.Context, list models.SmartList, trigger models.RefreshTrigger) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	run := models.RefreshRun{ListID: list.ID, Trigger: trigger, StartedAt: r.cfg.Now()}
	ids, err := r.Evaluate(ctx, list)
	if err == nil && r.materializer != nil {
		if mErr := r.materializer.Materialize(ctx, list, ids); mErr != nil {
			err = fmt.Errorf("materialize: %w", mErr)
		}
	}
	run.FinishedAt = r.cfg.Now()

	if err != nil {
		run.Message = describe(err)
		r.log.Warn("refresh failed", "list", list.ID, "name", list.Name, "error", err)
	} else {
		run.Success = true
		run.ItemCount = len(ids)
		run.Message = fmt.Sprintf("%d items", len(ids))
	}
	r.record(run)
	return run.Success, run.Message
}

// record stores the run outside the pass context, which may already have
// expired.
func (r *Runner) record(run models.RefreshRun) {
	if r.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := r.recorder.RecordRun(ctx, run); err != nil {
		r.log.Error("failed to record refresh run", "list", run.ListID, "error", err)
	}
}

func describe(err error) string {
	var userErr *snapshot.UserResolutionError
	switch {
	case errors.As(err, &userErr):
		return userErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "refresh timed out"
	default:
		return err.Error()
	}
}

// Evaluate computes the ordered member ids of list without materializing
// them.
func (r *Runner) Evaluate(ctx context.Context, list models.SmartList) ([]string, error) {
	cache := snapshot.NewCache()

	owner, err := r.builder.ResolveUser(ctx, list.OwnerUserID, cache)
	if err != nil {
		return nil, err
	}
	opts := rules.RequiredOptions(list.ExpressionSets, owner.ID)
	if _, err := r.builder.ResolveUsers(ctx, opts.AdditionalUserIDs, cache); err != nil {
		return nil, err
	}

	items, err := r.library.QueryItems(ctx, models.ItemQuery{
		Kinds:     list.EffectiveKinds(),
		Recursive: true,
		UserID:    owner.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}

	started := time.Now()
	operands, err := r.buildOperands(ctx, items, owner, opts, cache)
	if err != nil {
		return nil, err
	}

	minShared := list.SimilarityMinShared
	if minShared <= 0 {
		minShared = r.cfg.SimilarityMinShared
	}
	compileOpts := rules.Options{
		ReferenceUserID: owner.ID,
		Now:             r.cfg.Now,
		MinShared:       minShared,
	}
	if rules.UsesSimilarity(list.ExpressionSets) {
		preds, err := rules.SimilarityMatchers(list.ExpressionSets)
		if err != nil {
			return nil, err
		}
		matchers := make([]snapshot.ReferenceMatcher, 0, len(preds))
		for _, p := range preds {
			matchers = append(matchers, p)
		}
		compileOpts.Similarity = r.builder.SimilarityReference(cache, operands, matchers)
	}

	ruleSet, err := rules.CompileRuleSet(list.ExpressionSets, compileOpts)
	if err != nil {
		return nil, err
	}

	var matched []int
	for i, o := range operands {
		if o != nil && rules.Evaluate(ruleSet, o) {
			matched = append(matched, i)
		}
	}
	orderMembers(items, matched, list)
	if list.MaxItems > 0 && len(matched) > list.MaxItems {
		matched = matched[:list.MaxItems]
	}

	ids := make([]string, 0, len(matched))
	for _, i := range matched {
		ids = append(ids, items[i].ID)
	}

	r.log.Debug("list evaluated",
		"list", list.ID,
		"candidates", len(items),
		"members", len(ids),
		"duration", time.Since(started),
		"cache", cache.Stats(),
	)
	return ids, nil
}

// buildOperands builds one operand per item concurrently. The result is
// index-aligned with items; unsupported kinds leave a nil slot. A user
// resolution failure cancels the pass.
func (r *Runner) buildOperands(ctx context.Context, items []models.Item, owner models.User, opts models.ExtractOptions, cache *snapshot.Cache) ([]*models.Operand, error) {
	operands := make([]*models.Operand, len(items))

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(r.cfg.Workers).
		WithCancelOnError().
		WithFirstError()
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			o, err := r.builder.Build(ctx, item, owner, opts, cache)
			if errors.Is(err, snapshot.ErrUnsupportedKind) {
				return nil
			}
			if err != nil {
				return err
			}
			operands[i] = o
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return operands, ctx.Err()
}
