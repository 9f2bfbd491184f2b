// Package engine reconciles the remote workspace with the vault.
//
// A sync run goes Fetching, Scanning, PushingLocalChanges, Reconciling and
// back to idle. Runs are single-flight: a request while one is in flight is
// rejected, not queued. Any step error ends the run with a failed Result;
// documents already written stay written.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harrisonrobin/todovault/pkg/local"
	"github.com/harrisonrobin/todovault/pkg/materialize"
	"github.com/harrisonrobin/todovault/pkg/model"
	"github.com/harrisonrobin/todovault/pkg/remote"
	"github.com/harrisonrobin/todovault/pkg/todoist"
	"github.com/harrisonrobin/todovault/pkg/validate"
	"github.com/harrisonrobin/todovault/pkg/vault"
)

// DefaultDrainInterval is how often Start drains the pending queue.
const DefaultDrainInterval = 5 * time.Second

// editSlack keeps the engine's own write of a document, which lands just
// after its last_sync stamp, from reading as a user edit.
const editSlack = 2 * time.Second

// Remote is the remote service. *todoist.Client implements it.
type Remote interface {
	TestConnection(ctx context.Context) error
	FetchFullSnapshot(ctx context.Context) (model.Payload, error)
	FetchIncremental(ctx context.Context, token string) (model.Payload, error)
	UpdateTaskFields(ctx context.Context, id string, u todoist.TaskUpdate) error
	SetTaskCompletion(ctx context.Context, id string, completed bool) error
	UpdateProjectFields(ctx context.Context, id string, u todoist.ProjectUpdate) error
}

// Mirror is told about the remote tasks after every successful sync.
type Mirror interface {
	MirrorTasks(ctx context.Context, tasks []model.Task, projects []model.Project) error
}

// Options configure an Engine.
type Options struct {
	// Root is the vault folder synced documents live under.
	Root     string
	ScopeTag string
	Fields   model.Fields
	DryRun   bool
	// LiveSync enables the pending queue fed by OnDocumentModified.
	LiveSync bool
	// PruneDeleted deletes documents of entities the remote reports deleted.
	PruneDeleted bool

	// SyncInterval schedules full runs from Start. Zero disables them.
	SyncInterval  time.Duration
	DrainInterval time.Duration

	// StatePath persists the remote mirror. Empty keeps it in memory.
	StatePath string

	Mirror     Mirror
	OnComplete func(Result)
	Logger     *log.Logger
	Now        func() time.Time
}

// Engine owns both state mirrors.
type Engine struct {
	client  Remote
	storage vault.Storage
	remote  *remote.State
	local   *local.State
	mat     *materialize.Materializer
	opts    Options
	logger  *log.Logger

	running atomic.Bool
	// stateMu confines remote and local to one operation at a time.
	stateMu sync.Mutex

	queueMu sync.Mutex
	pending map[string]time.Time

	statsMu    sync.Mutex
	cached     Stats
	lastResult *Result
}

// New creates an engine. A nil state starts from an empty remote mirror.
func New(client Remote, storage vault.Storage, state *remote.State, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = DefaultDrainInterval
	}
	opts.Root = vault.Clean(opts.Root)
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if state == nil {
		state = remote.New()
	}

	e := &Engine{
		client:  client,
		storage: storage,
		remote:  state,
		opts:    opts,
		logger:  logger,
		pending: make(map[string]time.Time),
	}
	e.local = local.New(storage, local.Options{Root: opts.Root, ScopeTag: opts.ScopeTag, Logger: logger})
	e.mat = materialize.New(storage, materialize.Options{
		Root:     opts.Root,
		ScopeTag: opts.ScopeTag,
		Fields:   opts.Fields,
		DryRun:   opts.DryRun,
		Logger:   logger,
		Now:      opts.Now,
	})
	return e
}

type entityKey struct {
	kind model.Kind
	id   string
}

// run is the bookkeeping of one operation.
type run struct {
	result Result
	// pushed holds the entities whose local edits reached the remote in this
	// run. The stale payload fetched before the push must not revert them.
	pushed     map[entityKey]bool
	tombstones []entityKey
}

func (e *Engine) newRun(op string) *run {
	return &run{
		result: Result{Op: op, DryRun: e.opts.DryRun, StartedAt: e.opts.Now()},
		pushed: make(map[entityKey]bool),
	}
}

func busy(op string) Result {
	return Result{Op: op, Success: false, Message: "sync already in progress"}
}

// finish closes a run. Callers hold stateMu.
func (e *Engine) finish(r *run, err error) Result {
	res := r.result
	res.FinishedAt = e.opts.Now()
	switch {
	case err != nil:
		res.Success = false
		res.Message = err.Error()
		switch {
		case IsTransport(err):
			e.logger.Printf("Warning: %s failed talking to the remote: %v", res.Op, err)
		case IsStorage(err):
			e.logger.Printf("Warning: %s failed on the vault: %v", res.Op, err)
		default:
			e.logger.Printf("Warning: %s failed: %v", res.Op, err)
		}
	case res.Failed > 0:
		res.Success = false
		res.Message = fmt.Sprintf("%d entities failed; %s", res.Failed, res.summary())
		e.logger.Printf("Warning: %s finished with failures: %s", res.Op, res.Message)
	default:
		res.Success = true
		res.Message = res.summary()
		e.logger.Printf("%s complete: %s", res.Op, res.Message)
	}

	snap := e.snapshotLocked()
	e.statsMu.Lock()
	e.cached = snap
	e.lastResult = &res
	e.statsMu.Unlock()

	if e.opts.OnComplete != nil {
		e.opts.OnComplete(res)
	}
	return res
}

// PerformSync runs the whole pipeline.
func (e *Engine) PerformSync(ctx context.Context) Result {
	if !e.running.CompareAndSwap(false, true) {
		return busy("sync")
	}
	defer e.running.Store(false)
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	r := e.newRun("sync")
	if err := e.checkConnection(ctx); err != nil {
		return e.finish(r, err)
	}
	if err := e.fetch(ctx, r); err != nil {
		return e.finish(r, err)
	}
	if err := e.scan(ctx, r); err != nil {
		return e.finish(r, err)
	}
	e.push(ctx, r)
	e.reconcile(ctx, r)
	e.prune(ctx, r)

	if !e.opts.DryRun && r.result.Failed == 0 {
		e.remote.LastRun = e.opts.Now()
	}
	e.persist(r)
	if r.result.Failed == 0 && !e.opts.DryRun {
		e.mirror(ctx)
	}
	return e.finish(r, nil)
}

// Fetch only refreshes the remote mirror.
func (e *Engine) Fetch(ctx context.Context) Result {
	if !e.running.CompareAndSwap(false, true) {
		return busy("fetch")
	}
	defer e.running.Store(false)
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	r := e.newRun("fetch")
	if err := e.fetch(ctx, r); err != nil {
		return e.finish(r, err)
	}
	e.persist(r)
	return e.finish(r, nil)
}

// Scan only rebuilds the local mirror.
func (e *Engine) Scan(ctx context.Context) Result {
	if !e.running.CompareAndSwap(false, true) {
		return busy("scan")
	}
	defer e.running.Store(false)
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	r := e.newRun("scan")
	return e.finish(r, e.scan(ctx, r))
}

// Pull fetches, scans and reconciles without pushing local edits. It does
// not move the run watermark, so unpushed edits are still found by the next
// full sync.
func (e *Engine) Pull(ctx context.Context) Result {
	if !e.running.CompareAndSwap(false, true) {
		return busy("pull")
	}
	defer e.running.Store(false)
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	r := e.newRun("pull")
	if err := e.checkConnection(ctx); err != nil {
		return e.finish(r, err)
	}
	if err := e.fetch(ctx, r); err != nil {
		return e.finish(r, err)
	}
	if err := e.scan(ctx, r); err != nil {
		return e.finish(r, err)
	}
	e.reconcile(ctx, r)
	e.prune(ctx, r)
	e.persist(r)
	return e.finish(r, nil)
}

func (e *Engine) checkConnection(ctx context.Context) error {
	if err := e.client.TestConnection(ctx); err != nil {
		return &TransportError{Op: "test connection", Err: err}
	}
	return nil
}

// fetch pulls a payload into the remote mirror. An incremental fetch that
// fails for any reason falls back to one full fetch; there is no retry
// beyond that.
func (e *Engine) fetch(ctx context.Context, r *run) error {
	now := e.opts.Now()

	var payload model.Payload
	fetched := false
	if !e.remote.NeedsFullSync(now) {
		p, err := e.client.FetchIncremental(ctx, e.remote.SyncToken)
		if err != nil {
			e.logger.Printf("Warning: incremental fetch failed, falling back to a full sync: %v", err)
		} else {
			payload, fetched = p, true
		}
	}
	if !fetched {
		p, err := e.client.FetchFullSnapshot(ctx)
		if err != nil {
			return &TransportError{Op: "fetch full snapshot", Err: err}
		}
		p.FullSync = true
		payload = p
	}

	r.result.Fetched = payload.Size()
	valid, errs := validate.Payload(payload)
	for _, err := range errs {
		e.logger.Printf("Warning: %v", &ValidationError{Err: err})
	}
	r.result.Dropped += len(errs)
	r.result.FullSync = valid.FullSync

	if e.opts.PruneDeleted {
		r.tombstones = append(r.tombstones, tombstones(valid)...)
	}
	e.remote.Replay(valid, now)
	return nil
}

func tombstones(p model.Payload) []entityKey {
	var keys []entityKey
	for _, proj := range p.Projects {
		if proj.IsDeleted {
			keys = append(keys, entityKey{model.KindProject, proj.ID})
		}
	}
	for _, sec := range p.Sections {
		if sec.IsDeleted {
			keys = append(keys, entityKey{model.KindSection, sec.ID})
		}
	}
	for _, t := range p.Tasks {
		if t.IsDeleted {
			keys = append(keys, entityKey{model.KindTask, t.ID})
		}
	}
	return keys
}

func (e *Engine) scan(ctx context.Context, r *run) error {
	if err := e.local.Scan(ctx, e.opts.Now()); err != nil {
		return &StorageError{Op: "scan", Path: e.local.Root(), Err: err}
	}
	r.result.Duplicates = len(e.local.Duplicates())
	return nil
}

// persist saves the remote mirror. Dry runs keep it in memory only.
func (e *Engine) persist(r *run) {
	if e.opts.StatePath == "" || e.opts.DryRun {
		return
	}
	if err := e.remote.Save(e.opts.StatePath); err != nil {
		r.result.Failed++
		e.logger.Printf("Warning: %v", &StorageError{Op: "save remote state", Path: e.opts.StatePath, Err: err})
	}
}

func (e *Engine) mirror(ctx context.Context) {
	if e.opts.Mirror == nil {
		return
	}
	if err := e.opts.Mirror.MirrorTasks(ctx, e.remote.AllTasks(), e.remote.AllProjects()); err != nil {
		e.logger.Printf("Warning: agenda mirror failed: %v", err)
	}
}

// OnDocumentModified queues a live edit. It is a no-op unless live sync is
// enabled.
func (e *Engine) OnDocumentModified(p string) {
	if !e.opts.LiveSync {
		return
	}
	p = vault.Clean(p)
	if !vault.IsDocument(p) || !e.inRoot(p) {
		return
	}
	e.queueMu.Lock()
	e.pending[p] = e.opts.Now()
	e.queueMu.Unlock()
}

// OnDocumentDeleted forgets a document the user removed. The entity itself
// is untouched; the next reconcile writes its document again.
func (e *Engine) OnDocumentDeleted(p string) {
	p = vault.Clean(p)
	e.queueMu.Lock()
	delete(e.pending, p)
	e.queueMu.Unlock()

	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	if doc, ok := e.local.RemovePath(p); ok {
		e.logger.Printf("%s %s lost its document %s", doc.Kind, doc.EntityID, p)
	}
}

func (e *Engine) inRoot(p string) bool {
	root := e.opts.Root
	return root == "" || strings.HasPrefix(p, root+"/")
}

type queued struct {
	path string
	at   time.Time
}

func (e *Engine) queued() []queued {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	out := make([]queued, 0, len(e.pending))
	for p, at := range e.pending {
		out = append(out, queued{path: p, at: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out
}

// dequeue drops an entry unless it was queued again while being processed.
func (e *Engine) dequeue(q queued) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	if at, ok := e.pending[q.path]; ok && at.Equal(q.at) {
		delete(e.pending, q.path)
	}
}

// ProcessPending pushes queued live edits outside of a full run. It does
// not take the single-flight flag; while a run holds the state it does
// nothing and leaves the queue to that run.
func (e *Engine) ProcessPending(ctx context.Context) Result {
	if !e.stateMu.TryLock() {
		return Result{Op: "pending", Success: true, Message: "run in progress"}
	}
	defer e.stateMu.Unlock()

	items := e.queued()
	if len(items) == 0 {
		return Result{Op: "pending", Success: true, Message: "no pending changes"}
	}
	if e.remote.LastFullSync.IsZero() {
		return Result{Op: "pending", Success: false, Message: "remote state not loaded yet; pending changes kept"}
	}

	r := e.newRun("pending")
	for _, q := range items {
		doc, err := e.storage.ReadDocument(ctx, q.path)
		switch {
		case err == nil && e.local.InScope(doc):
			e.local.Put(doc)
			e.pushDocument(ctx, r, doc)
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			r.result.Failed++
			e.logger.Printf("Warning: %v", &StorageError{Op: "read", Path: q.path, Err: err})
		}
		e.dequeue(q)
	}
	return e.finish(r, nil)
}

// Start runs the scheduled loops until ctx is cancelled: full runs every
// SyncInterval and, with live sync on, a drain of the pending queue every
// DrainInterval. A run that has started is not cut short by cancellation.
func (e *Engine) Start(ctx context.Context) {
	var wg sync.WaitGroup
	if e.opts.SyncInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.every(ctx, e.opts.SyncInterval, func() {
				e.PerformSync(context.WithoutCancel(ctx))
			})
		}()
	}
	if e.opts.LiveSync {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.every(ctx, e.opts.DrainInterval, func() {
				e.ProcessPending(context.WithoutCancel(ctx))
			})
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (e *Engine) every(ctx context.Context, d time.Duration, fn func()) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
