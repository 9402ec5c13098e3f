package entity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/timmy/legisync/internal/domain"
	"github.com/timmy/legisync/internal/fetch"
	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/pipeline"
	"github.com/timmy/legisync/internal/remote"
	"github.com/timmy/legisync/internal/retry"
	"github.com/timmy/legisync/internal/store"
)

// Document is a transformed entity ready to persist.
type Document struct {
	ID   string
	Data map[string]any
}

// Deps are the collaborators a Job needs. Store may be nil for dry runs.
type Deps struct {
	Reader      remote.Reader
	Store       store.Store
	Executor    *retry.Executor
	Policy      retry.Policy
	Concurrency int
	Interval    time.Duration
	Limiter     *rate.Limiter
	// Source is recorded in every document's _source field.
	Source string
	Now    func() time.Time
}

// Job is the descriptor-driven pipeline job.
type Job struct {
	desc Descriptor
	deps Deps
}

var _ pipeline.Job[Record, Document] = (*Job)(nil)

// NewJob builds a Job for desc.
func NewJob(desc Descriptor, deps Deps) *Job {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Policy.MaxAttempts < 1 {
		deps.Policy = retry.DefaultPolicy()
	}
	if deps.Limiter == nil && deps.Interval > 0 {
		// One limiter per job so list paging and detail fetches share one pace.
		deps.Limiter = rate.NewLimiter(rate.Every(deps.Interval), 1)
	}
	return &Job{desc: withDefaults(desc), deps: deps}
}

func (j *Job) Name() string {
	return j.desc.Family
}

// Descriptor returns the job's descriptor.
func (j *Job) Descriptor() Descriptor {
	return j.desc
}

func (j *Job) Validate(_ context.Context, opts domain.JobOptions) pipeline.Validation {
	var v pipeline.Validation

	if opts.Family != "" && opts.Family != j.desc.Family {
		v.Errors = append(v.Errors, fmt.Sprintf("options family %q does not match job %q", opts.Family, j.desc.Family))
	}
	if len(opts.IDs) > 0 && j.desc.DetailPath == "" {
		v.Errors = append(v.Errors, fmt.Sprintf("%s cannot be fetched by id", j.desc.Family))
	}
	if j.desc.UsesPeriod && len(opts.IDs) == 0 && opts.Period == 0 {
		v.Errors = append(v.Errors, fmt.Sprintf("%s requires a legislative period", j.desc.Family))
	}
	if !opts.DryRun && j.deps.Store == nil {
		v.Errors = append(v.Errors, "no store configured for destination "+string(opts.Destination))
	}

	if opts.Limit == 0 && len(opts.IDs) == 0 {
		v.Warnings = append(v.Warnings, "no limit set, fetching every page")
	}
	if !j.desc.UsesDateRange && (opts.StartDate != nil || opts.EndDate != nil) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%s ignores the date range", j.desc.Family))
	}
	if !j.desc.UsesPeriod && opts.Period > 0 && j.desc.HistoryPath == "" {
		v.Warnings = append(v.Warnings, fmt.Sprintf("%s ignores the legislative period", j.desc.Family))
	}
	return v
}

func (j *Job) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return retry.Do(ctx, j.deps.Executor, j.deps.Policy, "GET "+path, func(ctx context.Context) ([]byte, error) {
		if j.deps.Limiter != nil {
			if err := j.deps.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		return j.deps.Reader.Get(ctx, path, query)
	})
}

func (j *Job) Extract(ctx context.Context, run *pipeline.Run) ([]Record, error) {
	opts := run.Options()

	var summaries []Record
	if len(opts.IDs) > 0 {
		ids := opts.IDs
		if opts.Limit > 0 && len(ids) > opts.Limit {
			ids = ids[:opts.Limit]
		}
		for _, id := range ids {
			summaries = append(summaries, Record{j.desc.IDField: id})
		}
	} else {
		var err error
		summaries, err = j.list(ctx, run)
		if err != nil {
			return nil, err
		}
	}

	if !j.desc.FetchDetail && len(opts.IDs) == 0 {
		for range summaries {
			run.Success(domain.PhaseExtract)
		}
		run.Progress(len(summaries), len(summaries), "list fetched")
		return summaries, nil
	}
	return j.details(ctx, run, summaries, len(opts.IDs) > 0), nil
}

// list pages through the list endpoint until the limit is met or the
// upstream has no rel=next link.
func (j *Job) list(ctx context.Context, run *pipeline.Run) ([]Record, error) {
	opts := run.Options()
	pageSize := j.desc.PageSize
	if opts.Limit > 0 && opts.Limit < pageSize {
		pageSize = opts.Limit
	}

	query := url.Values{}
	query.Set("pagina", "1")
	query.Set("itens", strconv.Itoa(pageSize))
	if j.desc.UsesPeriod && opts.Period > 0 {
		query.Set(j.desc.PeriodParam, strconv.Itoa(opts.Period))
	}
	if j.desc.UsesDateRange {
		if opts.StartDate != nil {
			query.Set("dataInicio", opts.StartDate.Format("2006-01-02"))
		}
		if opts.EndDate != nil {
			query.Set("dataFim", opts.EndDate.Format("2006-01-02"))
		}
	}

	var out []Record
	for page := 1; ; page++ {
		body, err := j.get(ctx, j.desc.ListPath, query)
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", j.desc.Family, page, err)
		}
		resp, err := Decode(body, j.desc.IDField)
		if err != nil {
			return nil, fmt.Errorf("list %s page %d: %w", j.desc.Family, page, err)
		}

		for _, item := range resp.Items {
			if _, ok := item.ID(j.desc.IDField); !ok {
				run.Skip(domain.PhaseExtract, "", "list item without id")
				continue
			}
			out = append(out, item)
			if opts.Limit > 0 && len(out) >= opts.Limit {
				return out, nil
			}
		}
		run.Logger().WithFields(logger.Fields{"page": page, logger.FieldCount: len(out)}).Debug("List page fetched")

		next, ok := resp.Next()
		if !ok || len(resp.Items) == 0 {
			return out, nil
		}
		u, err := url.Parse(next)
		if err != nil {
			return nil, fmt.Errorf("list %s: bad next link %q: %w", j.desc.Family, next, err)
		}
		query = u.Query()
	}
}

// details fetches each entity's detail record. When a summary exists a failed
// lookup degrades to it; when only an ID was given the entity fails.
func (j *Job) details(ctx context.Context, run *pipeline.Run, summaries []Record, idsOnly bool) []Record {
	ids := make([]string, len(summaries))
	for i, s := range summaries {
		ids[i], _ = s.ID(j.desc.IDField)
	}

	results := fetch.Each(ctx, ids, func(ctx context.Context, id string) (Record, error) {
		if j.desc.RelatedPath == "" {
			return j.detail(ctx, id)
		}
		rec, related, err := fetch.Pair(ctx,
			func(ctx context.Context) (Record, error) { return j.detail(ctx, id) },
			func(ctx context.Context) ([]Record, error) { return j.related(ctx, id) },
		)
		if err != nil {
			return nil, err
		}
		rec[j.desc.RelatedField] = related
		return rec, nil
	}, fetch.Options{
		Concurrency: j.deps.Concurrency,
		Limiter:     j.deps.Limiter,
		Executor:    j.deps.Executor,
		Policy:      j.deps.Policy,
		Label:       "detail " + j.desc.Family,
		OnProgress: func(done, total int) {
			run.Progress(done, total, "fetching details")
		},
	})

	out := make([]Record, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
				run.Skip(domain.PhaseExtract, r.ID, "cancelled")
				continue
			}
			if idsOnly {
				run.Failure(domain.PhaseExtract, r.ID, r.Err)
				continue
			}
			run.Warning(domain.PhaseExtract, r.ID, "detail unavailable, using summary: "+r.Err.Error())
			out = append(out, summaries[i])
			run.Success(domain.PhaseExtract)
			continue
		}
		merged := make(Record, len(summaries[i])+len(r.Value))
		for k, v := range summaries[i] {
			merged[k] = v
		}
		for k, v := range r.Value {
			merged[k] = v
		}
		out = append(out, merged)
		run.Success(domain.PhaseExtract)
	}
	return out
}

func (j *Job) detail(ctx context.Context, id string) (Record, error) {
	path := j.desc.Render(j.desc.DetailPath, url.PathEscape(id), 0)
	body, err := j.deps.Reader.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := Decode(body, j.desc.IDField)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) != 1 {
		return nil, fmt.Errorf("%w: detail for %s has %d items", ErrUnknownShape, id, len(resp.Items))
	}
	return resp.Items[0], nil
}

func (j *Job) related(ctx context.Context, id string) ([]Record, error) {
	path := j.desc.Render(j.desc.RelatedPath, url.PathEscape(id), 0)
	body, err := j.deps.Reader.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := Decode(body, j.desc.IDField)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (j *Job) Transform(ctx context.Context, run *pipeline.Run, records []Record) ([]Document, error) {
	syncedAt := j.deps.Now().UTC().Format(time.RFC3339)
	docs := make([]Document, 0, len(records))
	seen := make(map[string]int, len(records))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, _ := rec.ID(j.desc.IDField)
		doc, err := j.mapFields(rec)
		if err != nil {
			run.Failure(domain.PhaseTransform, id, err)
			continue
		}
		doc["_family"] = j.desc.Family
		doc["_syncedAt"] = syncedAt
		doc["_source"] = j.deps.Source + j.desc.Render(j.desc.DetailPath, id, 0)

		// a repeated id keeps the later record
		if idx, dup := seen[id]; dup {
			docs[idx].Data = doc
			run.Skip(domain.PhaseTransform, id, "duplicate id")
		} else {
			seen[id] = len(docs)
			docs = append(docs, Document{ID: id, Data: doc})
			run.Success(domain.PhaseTransform)
		}
		run.Progress(i+1, len(records), "transforming")
	}
	return docs, nil
}

// MissingFieldError reports a required destination key with no source value.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

func (j *Job) mapFields(rec Record) (map[string]any, error) {
	doc := make(map[string]any, len(j.desc.Fields)+3)
	for _, f := range j.desc.Fields {
		for _, src := range f.Sources {
			if v, ok := rec.Lookup(src); ok {
				doc[f.Target] = v
				break
			}
		}
	}
	for _, req := range j.desc.Required {
		if v, ok := doc[req]; !ok || v == "" {
			return nil, &MissingFieldError{Field: req}
		}
	}
	return doc, nil
}

func (j *Job) Load(ctx context.Context, run *pipeline.Run, docs []Document) error {
	opts := run.Options()
	if j.deps.Store == nil {
		return errors.New("no store configured")
	}

	withHistory := j.desc.HistoryPath != "" && opts.Period > 0
	perDoc := 1
	if withHistory {
		perDoc = 2
	}

	entities := j.deps.Store.NewBatch()
	for _, d := range docs {
		entities.Set(j.desc.Render(j.desc.CurrentPath, d.ID, opts.Period), d.Data)
		if withHistory {
			entities.Set(j.desc.Render(j.desc.HistoryPath, d.ID, opts.Period), d.Data)
		}
	}
	if err := entities.Commit(ctx); err != nil {
		var chunkErr *store.ChunkError
		if errors.As(err, &chunkErr) {
			run.Processed(chunkErr.Committed / perDoc)
		}
		return fmt.Errorf("commit %s documents: %w", j.desc.Family, err)
	}
	run.Processed(len(docs))
	run.Progress(len(docs), len(docs)+1, "documents committed")

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	now := j.deps.Now().UTC().Format(time.RFC3339)

	summary := j.deps.Store.NewBatch()
	summary.Set(j.desc.Render(j.desc.MetadataPath, "", opts.Period), map[string]any{
		"family":      j.desc.Family,
		"total":       len(docs),
		"period":      opts.Period,
		"jobId":       run.ID(),
		"lastSyncAt":  now,
		"destination": string(opts.Destination),
	})
	summary.Set(j.desc.Render(j.desc.IndexPath, "", opts.Period), map[string]any{
		"family":    j.desc.Family,
		"period":    opts.Period,
		"ids":       ids,
		"updatedAt": now,
	})
	if err := summary.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s metadata: %w", j.desc.Family, err)
	}
	run.Progress(1, 1, "metadata committed")
	return nil
}
