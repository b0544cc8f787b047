package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/sitedrop/internal/bundle"
	"github.com/raysh454/sitedrop/internal/logging"
	"github.com/raysh454/sitedrop/internal/metrics"
	"github.com/raysh454/sitedrop/internal/pages"
	"github.com/raysh454/sitedrop/internal/publisher"
	"github.com/raysh454/sitedrop/internal/registry"
	"github.com/raysh454/sitedrop/internal/remote"
)

// Stage names one step of the deployment workflow.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageProvision Stage = "provision"
	StagePublish   Stage = "publish"
	StageActivate  Stage = "activate"
	StageRecord    Stage = "record"
)

// StageError is the single error a failed deployment surfaces.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

var ErrOrchestratorClosed = errors.New("orchestrator is closed")

// Provisioner creates the repository for a deployment.
type Provisioner interface {
	Provision(ctx context.Context, projectName, contactEmail string) (*remote.Repository, error)
}

// Publisher writes the bundle into the repository.
type Publisher interface {
	Publish(ctx context.Context, repo *remote.Repository, files []bundle.File, progress publisher.ProgressFunc) (*publisher.Report, error)
}

// Activator turns on hosting for the repository.
type Activator interface {
	Activate(ctx context.Context, repo *remote.Repository) (*pages.Result, error)
}

// Components are the collaborators the workflow runs through.
type Components struct {
	Provisioner Provisioner
	Publisher   Publisher
	Activator   Activator
	Registry    registry.Registry
	Metrics     *metrics.Metrics
}

// Deployment is the outcome of a successful workflow run.
type Deployment struct {
	SessionID       string            `json:"sessionId"`
	ProjectName     string            `json:"projectName"`
	RepositoryName  string            `json:"repositoryName"`
	RepositoryURL   string            `json:"repositoryUrl"`
	HostingEndpoint string            `json:"hostingEndpoint"`
	Warnings        []bundle.Warning  `json:"warnings,omitempty"`
	Publish         *publisher.Report `json:"publish,omitempty"`
	Pages           *pages.Result     `json:"pages,omitempty"`
	Record          registry.Record   `json:"record"`
}

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventStage    JobEventType = "stage"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For stage changes
	Stage Stage `json:"stage,omitempty"`

	// For progress (optional fields)
	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

const jobTypeDeploy = "deploy"

type Job struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Project   string        `json:"project"`
	SessionID string        `json:"session_id"`
	Status    JobStatus     `json:"status"`
	Stage     Stage         `json:"stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Result *Deployment `json:"result,omitempty"`
}

func (j *Job) finished() bool {
	return j.Status == JobDone || j.Status == JobFailed || j.Status == JobCanceled
}

type Orchestrator struct {
	cfg     *Config
	comps   Components
	logger  logging.Logger
	metrics *metrics.Metrics

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
	subs       map[string]map[chan JobEvent]struct{}
	closed     bool
	wg         sync.WaitGroup

	now func() time.Time
}

// NewOrchestrator ties together config, the workflow components and logger.
func NewOrchestrator(cfg *Config, comps Components, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:        cfg,
		comps:      comps,
		logger:     logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		metrics:    comps.Metrics,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
		subs:       make(map[string]map[chan JobEvent]struct{}),
		now:        time.Now,
	}
}

// Projects returns every recorded deployment.
func (o *Orchestrator) Projects(ctx context.Context) ([]registry.Record, error) {
	if o.comps.Registry == nil {
		return nil, nil
	}
	return o.comps.Registry.List(ctx)
}

// Deploy runs validate, provision, publish, activate and record in order.
// The first failing stage aborts the run with a *StageError. Cancelling ctx
// does not abort a started deployment; only its values are used.
func (o *Orchestrator) Deploy(ctx context.Context, b *bundle.Bundle) (*Deployment, error) {
	return o.run(context.WithoutCancel(ctx), context.Background(), b, nil)
}

// stageFunc reports stage starts and publish progress.
type stageFunc func(stage Stage, done, total int)

// run executes the workflow under work. stop is only consulted between
// stages, so an in-flight provider call is never cut off.
func (o *Orchestrator) run(work, stop context.Context, b *bundle.Bundle, report stageFunc) (*Deployment, error) {
	if report == nil {
		report = func(Stage, int, int) {}
	}
	started := o.now()

	var (
		dep  = &Deployment{}
		repo *remote.Repository
	)
	if b != nil {
		dep.SessionID = b.SessionID
		dep.ProjectName = b.ProjectName
	}

	stage := func(s Stage, fn func() error) error {
		if err := stop.Err(); err != nil {
			return &StageError{Stage: s, Err: err}
		}
		report(s, 0, 0)
		t0 := o.now()
		err := fn()
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		o.metrics.ObserveStage(string(s), outcome, o.now().Sub(t0))
		if err != nil {
			return &StageError{Stage: s, Err: err}
		}
		return nil
	}

	err := stage(StageValidate, func() error {
		if err := bundle.ValidateBundle(b); err != nil {
			return err
		}
		dep.Warnings = bundle.Inspect(b.Files)
		for _, w := range dep.Warnings {
			o.logger.Warn("bundle reference warning",
				logging.Field{Key: "session_id", Value: b.SessionID},
				logging.Field{Key: "file", Value: w.File},
				logging.Field{Key: "ref", Value: w.Ref},
				logging.Field{Key: "message", Value: w.Message})
		}
		return nil
	})
	if err == nil {
		err = stage(StageProvision, func() error {
			r, err := o.comps.Provisioner.Provision(work, b.ProjectName, b.ContactEmail)
			if err != nil {
				return err
			}
			repo = r
			dep.RepositoryName = r.Name
			dep.RepositoryURL = r.HTMLURL
			return nil
		})
	}
	if err == nil {
		err = stage(StagePublish, func() error {
			rep, err := o.comps.Publisher.Publish(work, repo, b.Files, func(done, total int) {
				report(StagePublish, done, total)
			})
			dep.Publish = rep
			return err
		})
	}
	if err == nil {
		err = stage(StageActivate, func() error {
			res, err := o.comps.Activator.Activate(work, repo)
			if err != nil {
				return err
			}
			dep.Pages = res
			dep.HostingEndpoint = res.Endpoint
			return nil
		})
	}
	if err == nil {
		err = stage(StageRecord, func() error {
			if o.comps.Registry == nil {
				return nil
			}
			rec, err := o.comps.Registry.Record(work, registry.Record{
				SessionID:       b.SessionID,
				ProjectName:     b.ProjectName,
				ContactEmail:    b.ContactEmail,
				RepositoryName:  dep.RepositoryName,
				HostingEndpoint: dep.HostingEndpoint,
				RepositoryURL:   dep.RepositoryURL,
			})
			dep.Record = rec
			return err
		})
	}

	if err != nil {
		var se *StageError
		errors.As(err, &se)
		o.metrics.DeploymentFinished("error", string(se.Stage))
		fields := []logging.Field{
			{Key: "session_id", Value: dep.SessionID},
			{Key: "stage", Value: string(se.Stage)},
			{Key: "duration", Value: o.now().Sub(started).String()},
			logging.Err(se.Err),
		}
		if repo != nil {
			// Nothing is rolled back; the repository stays behind.
			fields = append(fields, logging.Field{Key: "repo", Value: repo.FullName()})
		}
		o.logger.Error("deployment failed", fields...)
		return nil, err
	}

	o.metrics.DeploymentFinished("ok", "")
	o.logger.Info("deployment complete",
		logging.Field{Key: "session_id", Value: dep.SessionID},
		logging.Field{Key: "repo", Value: repo.FullName()},
		logging.Field{Key: "endpoint", Value: dep.HostingEndpoint},
		logging.Field{Key: "duration", Value: o.now().Sub(started).String()})
	return dep, nil
}

// ─── Jobs ───────────────────────────────────────────────────────────────

func (o *Orchestrator) newJob(jobType, project, sessionID string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Project:   project,
		SessionID: sessionID,
		Status:    JobPending,
		StartedAt: o.now().UTC(),
		Events:    make(chan JobEvent, 16),
	}
}

// subscriberBuffer is the per-subscriber event buffer.
const subscriberBuffer = 64

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok || job == nil {
		return
	}

	// Non-blocking sends; drop if a buffer is full.
	if job.Events != nil {
		select {
		case job.Events <- ev:
		default:
		}
	}
	for sub := range o.subs[jobID] {
		select {
		case sub <- ev:
		default:
		}
	}
}

// SubscribeJob returns a private stream of the job's events from now on,
// so several viewers of one job each see every event. The stream is closed
// when the job ends, or right away if it already has. unsubscribe releases
// it early. ok is false for an unknown job.
func (o *Orchestrator) SubscribeJob(jobID string) (events <-chan JobEvent, unsubscribe func(), ok bool) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	job, ok := o.jobs[jobID]
	if !ok || job == nil {
		return nil, func() {}, false
	}
	ch := make(chan JobEvent, subscriberBuffer)
	if !job.EndedAt.IsZero() {
		close(ch)
		return ch, func() {}, true
	}
	if o.subs[jobID] == nil {
		o.subs[jobID] = make(map[chan JobEvent]struct{})
	}
	o.subs[jobID][ch] = struct{}{}

	return ch, func() {
		o.jobsMu.Lock()
		defer o.jobsMu.Unlock()
		if _, ok := o.subs[jobID][ch]; ok {
			delete(o.subs[jobID], ch)
			close(ch)
		}
	}, true
}

func (o *Orchestrator) setJob(job *Job) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.jobs[job.ID] = job
}

func (o *Orchestrator) updateJob(jobID string, fn func(j *Job)) {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	if j, ok := o.jobs[jobID]; ok {
		fn(j)
	}
}

func (o *Orchestrator) progressCallback(jobID string) func(done, total int) {
	return func(done, total int) {
		o.emitJobEvent(jobID, JobEvent{
			JobID:     jobID,
			Type:      JobEventProgress,
			Processed: done,
			Total:     total,
		})
	}
}

// pruneJobs drops finished jobs older than the retention time. Callers hold
// jobsMu.
func (o *Orchestrator) pruneJobs() {
	if o.cfg.JobRetentionTime <= 0 {
		return
	}
	cutoff := o.now().UTC().Add(-o.cfg.JobRetentionTime)
	for id, j := range o.jobs {
		if j.finished() && !j.EndedAt.IsZero() && j.EndedAt.Before(cutoff) {
			delete(o.jobs, id)
		}
	}
}

// StartDeployJob runs the workflow in the background and returns the job
// immediately. cleanup, if set, runs once the workflow returns or the job is
// rejected.
// Cancelling the job stops it at the next stage boundary.
func (o *Orchestrator) StartDeployJob(ctx context.Context, b *bundle.Bundle, cleanup func()) (*Job, error) {
	if cleanup == nil {
		cleanup = func() {}
	}
	if b == nil {
		cleanup()
		return nil, &StageError{Stage: StageValidate, Err: bundle.ValidateBundle(nil)}
	}

	job := o.newJob(jobTypeDeploy, b.ProjectName, b.SessionID)
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		cancel()
		cleanup()
		return nil, ErrOrchestratorClosed
	}
	o.pruneJobs()
	o.jobs[job.ID] = job
	o.jobCancels[job.ID] = cancel
	o.wg.Add(1)
	o.jobsMu.Unlock()

	o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobPending})
	o.logger.Info("deploy job queued",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "session_id", Value: b.SessionID})

	go func() {
		defer o.wg.Done()
		defer func() {
			o.jobsMu.Lock()
			delete(o.jobCancels, job.ID)
			j := o.jobs[job.ID]
			if j != nil {
				j.EndedAt = o.now().UTC()
			}
			for sub := range o.subs[job.ID] {
				close(sub)
			}
			delete(o.subs, job.ID)
			o.jobsMu.Unlock()
			cancel()
			o.metrics.JobFinished()

			// Close events channel so websocket loop can terminate cleanly
			if j != nil && j.Events != nil {
				close(j.Events)
			}
		}()

		o.metrics.JobStarted()
		o.updateJob(job.ID, func(j *Job) { j.Status = JobRunning })
		o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStatus, Status: JobRunning})

		progress := o.progressCallback(job.ID)
		report := func(stage Stage, done, total int) {
			if total > 0 {
				progress(done, total)
				return
			}
			o.updateJob(job.ID, func(j *Job) { j.Stage = stage })
			o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventStage, Stage: stage})
		}

		dep, err := o.run(context.WithoutCancel(jobCtx), jobCtx, b, report)
		// Staged files are no longer needed once the workflow returns.
		cleanup()
		if err != nil {
			status := JobFailed
			if errors.Is(err, context.Canceled) {
				status = JobCanceled
			}
			o.updateJob(job.ID, func(j *Job) {
				j.Status = status
				j.Error = err.Error()
			})
			o.emitJobEvent(job.ID, JobEvent{
				JobID:  job.ID,
				Type:   JobEventStatus,
				Status: status,
				Error:  err.Error(),
			})
			return
		}

		o.updateJob(job.ID, func(j *Job) {
			j.Status = JobDone
			j.Result = dep
		})
		o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventResult, Status: JobDone})
	}()

	return job, nil
}

// CancelJob asks a running job to stop at its next stage boundary.
func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a snapshot of the job, or nil if it is unknown.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// ListJobs returns snapshots of all retained jobs, newest first.
func (o *Orchestrator) ListJobs() []Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	o.pruneJobs()
	out := make([]Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	return out
}

// Close rejects new jobs, cancels running ones and waits for them to stop.
// It is safe to call more than once.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	if o.closed {
		o.jobsMu.Unlock()
		return
	}
	o.closed = true
	cancels := make([]context.CancelFunc, 0, len(o.jobCancels))
	for _, c := range o.jobCancels {
		cancels = append(cancels, c)
	}
	o.jobsMu.Unlock()

	for _, c := range cancels {
		c()
	}
	o.wg.Wait()
}

// Shutdown closes the orchestrator, giving up waiting when ctx ends.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.Close()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
