// Package syncer coordinates a sync run: schema alignment first, then
// per-table streaming workers that extract, transcode, resolve and load
// in checkpointed batches.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"fm-sync/internal/checkpoint"
	"fm-sync/internal/ddl"
	"fm-sync/internal/dialect"
	"fm-sync/internal/extract"
	"fm-sync/internal/imagepipe"
	"fm-sync/internal/load"
	"fm-sync/internal/logging"
	"fm-sync/internal/schema"
	"fm-sync/internal/transcode"
)

type State string

const (
	StateInit         State = "INIT"
	StateSchemaSynced State = "SCHEMA_SYNCED"
	StateStreaming    State = "STREAMING"
	StatePaused       State = "PAUSED"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
)

// Event is a progress notification for one table.
type Event struct {
	Table string
	State State
	Rows  int64
	Total int64 // source row count, -1 when unknown
}

type ProgressFunc func(Event)

type Options struct {
	Chunk     int
	MaxRows   int // per table, <= 0 unbounded
	Workers   int
	Retries   int // source read retries per batch
	Resume    bool
	SkipDDL   bool // stream against an already-aligned target
	Location  *time.Location
	StartFrom map[string][]string // explicit resume keys, wins over checkpoints
	Images    *imagepipe.Exporter // nil disables container export
	Progress  ProgressFunc
}

// TableStatus is the per-table outcome within a run.
type TableStatus struct {
	Table   string
	State   State
	Result  load.Result
	LastKey []string
	Err     error
}

// Summary is the run report. The run completes even when individual
// tables fail; their errors are recorded here.
type Summary struct {
	RunID    string
	State    State
	Tables   []*TableStatus
	Started  time.Time
	Finished time.Time
}

func (s *Summary) Failed() []*TableStatus {
	var out []*TableStatus
	for _, t := range s.Tables {
		if t.State == StateFailed {
			out = append(out, t)
		}
	}
	return out
}

type Coordinator struct {
	source *sql.DB
	target *sql.DB
	src    dialect.Source
	gen    *ddl.Generator
	loader *load.Loader
	trans  *transcode.Transcoder
	store  checkpoint.Store
	opts   Options
	runID  string

	mu     sync.Mutex
	status map[string]*TableStatus
}

func New(source, target *sql.DB, src dialect.Source, gen *ddl.Generator, loader *load.Loader, store checkpoint.Store, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	return &Coordinator{
		source: source,
		target: target,
		src:    src,
		gen:    gen,
		loader: loader,
		trans:  transcode.New(opts.Location),
		store:  store,
		opts:   opts,
		runID:  uuid.NewString(),
		status: make(map[string]*TableStatus),
	}
}

func (c *Coordinator) RunID() string { return c.runID }

// Run executes a full sync over the given tables. Cancellation between
// batches pauses the run; checkpoints make the next run pick up where
// this one stopped.
func (c *Coordinator) Run(ctx context.Context, tables []*schema.Table) (*Summary, error) {
	log := logging.Component("syncer").With("run_id", c.runID)
	summary := &Summary{RunID: c.runID, State: StateInit, Started: time.Now()}

	for _, t := range tables {
		st := &TableStatus{Table: t.Name, State: StateInit}
		c.status[t.Name] = st
		summary.Tables = append(summary.Tables, st)
	}

	if !c.opts.SkipDDL {
		log.Info("aligning target schemas", "tables", len(tables))
		conflicts, err := c.gen.Apply(ctx, c.target, tables)
		if err != nil {
			summary.State = StateFailed
			summary.Finished = time.Now()
			return summary, err
		}
		for _, conflict := range conflicts {
			log.Warn("schema conflict, table left as-is", "table", conflict.Table, "detail", conflict.Detail)
		}
	}
	summary.State = StateSchemaSynced

	summary.State = StateStreaming
	queue := make(chan *schema.Table)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range queue {
				c.syncTable(ctx, t)
			}
		}()
	}
	for _, t := range tables {
		queue <- t
	}
	close(queue)
	wg.Wait()

	summary.Finished = time.Now()
	summary.State = c.finalState(ctx, summary)
	log.Info("run finished", "state", summary.State, "failed_tables", len(summary.Failed()))
	return summary, nil
}

func (c *Coordinator) finalState(ctx context.Context, s *Summary) State {
	if ctx.Err() != nil {
		return StatePaused
	}
	failed := len(s.Failed())
	if failed > 0 && failed == len(s.Tables) {
		return StateFailed
	}
	return StateCompleted
}

func (c *Coordinator) syncTable(ctx context.Context, t *schema.Table) {
	log := logging.TableLogger(c.runID, t.Name)
	st := c.status[t.Name]
	c.setState(st, StateStreaming)

	startKey, inclusive, err := c.startKey(t)
	if err != nil {
		c.fail(st, err)
		log.Error("cannot resume", "error", err)
		return
	}
	if len(startKey) > 0 {
		log.Info("resuming", "start_key", startKey, "inclusive", inclusive)
	}

	stream, err := extract.New(c.source, c.src, t, c.opts.Chunk, startKey, inclusive, c.opts.MaxRows)
	if err != nil {
		c.fail(st, err)
		return
	}

	var committed int64
	if cp, err := c.store.Load(t.Name); err == nil && c.opts.Resume {
		committed = cp.Rows
	}

	for {
		// Pause points sit between batches only; a batch in flight always
		// finishes or rolls back before the worker yields.
		if ctx.Err() != nil {
			c.setState(st, StatePaused)
			log.Info("paused", "rows", committed)
			return
		}

		batch, err := c.nextBatch(ctx, stream)
		if err != nil {
			c.fail(st, err)
			log.Error("source read failed", "error", err)
			return
		}
		if batch == nil {
			c.setState(st, StateCompleted)
			log.Info("table complete", "rows", committed,
				"inserted", st.Result.Inserted, "updated", st.Result.Updated,
				"duplicates", st.Result.Duplicates, "rejected", st.Result.Rejected)
			return
		}

		rows := c.trans.Batch(batch)
		res, err := c.loadWithRetry(ctx, t, rows)
		if err != nil {
			c.fail(st, err)
			log.Error("batch load failed", "error", err, "after_key", st.LastKey)
			return
		}

		if c.opts.Images != nil {
			for _, row := range rows {
				for _, blob := range row.Blobs {
					c.opts.Images.Submit(imagepipe.Job{Table: t.Name, Key: row.KeyText(), Field: blob.Field, Data: blob.Data})
				}
			}
		}

		committed += res.Rows()
		c.mu.Lock()
		st.Result.Add(res)
		st.LastKey = batch.LastKey
		c.mu.Unlock()

		// Checkpoint after commit, never before: a crash replays the batch
		// and the resolver absorbs the duplicates.
		if t.HasKey() && len(batch.LastKey) > 0 {
			cp := &checkpoint.Checkpoint{Table: t.Name, RunID: c.runID, LastKey: batch.LastKey, Rows: committed}
			if err := c.store.Save(cp); err != nil {
				c.fail(st, err)
				log.Error("checkpoint write failed", "error", err)
				return
			}
		}

		if c.opts.Progress != nil {
			c.opts.Progress(Event{Table: t.Name, State: StateStreaming, Rows: committed, Total: t.RowCount})
		}
		for _, r := range res.Rejects {
			log.Warn("row rejected", "key", r.Key, "reason", r.Reason)
		}
	}
}

// startKey resolves where streaming begins: an explicit start key wins
// and is inclusive, then the stored checkpoint when resuming (exclusive,
// the key already committed), else the top of the table.
func (c *Coordinator) startKey(t *schema.Table) ([]string, bool, error) {
	if key, ok := c.opts.StartFrom[t.Name]; ok {
		return key, true, nil
	}
	if !c.opts.Resume {
		return nil, false, nil
	}
	cp, err := c.store.Load(t.Name)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return cp.LastKey, false, nil
}

// nextBatch retries transient source reads with exponential backoff.
// Anything other than a read error is permanent.
func (c *Coordinator) nextBatch(ctx context.Context, stream *extract.Stream) (*extract.Batch, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.Retries)), ctx)
	return backoff.RetryWithData(func() (*extract.Batch, error) {
		batch, err := stream.Next(ctx)
		if err != nil {
			var re *extract.ReadError
			if errors.As(err, &re) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return batch, nil
	}, policy)
}

// loadWithRetry applies a batch and retries exactly once on a commit
// failure. The first attempt rolled back, so the replay is clean.
func (c *Coordinator) loadWithRetry(ctx context.Context, t *schema.Table, rows []*transcode.Row) (*load.Result, error) {
	res, err := c.loader.LoadBatch(ctx, t, rows)
	if err == nil {
		return res, nil
	}
	var ce *load.CommitError
	if !errors.As(err, &ce) || ctx.Err() != nil {
		return nil, err
	}
	return c.loader.LoadBatch(ctx, t, rows)
}

func (c *Coordinator) setState(st *TableStatus, s State) {
	c.mu.Lock()
	st.State = s
	c.mu.Unlock()
	if c.opts.Progress != nil {
		c.opts.Progress(Event{Table: st.Table, State: s, Rows: st.Result.Rows()})
	}
}

func (c *Coordinator) fail(st *TableStatus, err error) {
	c.mu.Lock()
	st.State = StateFailed
	st.Err = err
	c.mu.Unlock()
	if c.opts.Progress != nil {
		c.opts.Progress(Event{Table: st.Table, State: StateFailed, Rows: st.Result.Rows()})
	}
}
