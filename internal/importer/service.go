package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"trustdoc/internal/audit"
	imetrics "trustdoc/internal/importer/metrics"
	"trustdoc/internal/student"
	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
)

const (
	defaultWorkers = 4
	defaultBudget  = 10 * time.Minute

	// progressEvery is how many processed rows trigger a counter persist, so
	// polling the job during processing shows live progress.
	progressEvery = 25
)

// Recorder is the audit write path for job-level events.
type Recorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// Service runs bulk student imports. Submit validates the source and creates
// the job; row processing happens on a background goroutine with bounded
// workers. One active job per (institution, source name) at a time.
type Service struct {
	jobs        Store
	students    student.Store
	connections ConnectionStore
	recorder    Recorder
	logger      *slog.Logger
	metrics     *imetrics.Metrics
	workers     int
	budget      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	cancels map[id.JobID]context.CancelFunc

	// wg tracks background processing so tests and shutdown can drain.
	wg sync.WaitGroup
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *imetrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithWorkers bounds row-level parallelism per job.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBudget sets the wall-clock limit for one job before it is cancelled.
func WithBudget(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.budget = d
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithConnectionStore swaps the backing store for database connection
// descriptors.
func WithConnectionStore(store ConnectionStore) ServiceOption {
	return func(s *Service) {
		s.connections = store
	}
}

func NewService(jobs Store, students student.Store, recorder Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		jobs:        jobs,
		students:    students,
		connections: NewInMemoryConnectionStore(),
		recorder:    recorder,
		workers:     defaultWorkers,
		budget:      defaultBudget,
		now:         time.Now,
		cancels:     make(map[id.JobID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitRequest carries everything needed to start an import.
type SubmitRequest struct {
	InstitutionID id.InstitutionID
	Source        Source
	FileSize      int64
	Actor         id.ActorID
	OriginIP      string
}

// Submit reads the source, creates the job and starts background processing.
// An unreadable source still produces a job, immediately failed, so the
// attempt stays visible. A second submit for the same source name while the
// first is still running is rejected.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if req.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "institution ID required")
	}
	if req.Actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "actor ID required")
	}
	if req.Source == nil || strings.TrimSpace(req.Source.Name()) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "import source required")
	}

	sourceName := req.Source.Name()
	if _, err := s.jobs.FindActive(ctx, req.InstitutionID, sourceName); err == nil {
		return nil, dErrors.New(dErrors.CodeDuplicateActiveImport,
			fmt.Sprintf("an import for %q is already in progress", sourceName))
	} else if !errors.Is(err, ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check active imports")
	}

	job := &Job{
		InstitutionID: req.InstitutionID,
		SourceName:    sourceName,
		FileSize:      req.FileSize,
		Status:        StatusPending,
		SubmittedBy:   req.Actor,
		CreatedAt:     s.now().UTC(),
	}

	rows, readErr := req.Source.Rows()
	if readErr != nil {
		job.Status = StatusFailed
		job.FailureReason = readErr.Error()
		at := s.now().UTC()
		job.CompletedAt = &at
	} else {
		job.TotalRows = len(rows)
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist import job")
	}

	if err := s.auditJob(ctx, job, req.OriginIP, "submitted"); err != nil {
		return nil, err
	}

	if readErr != nil {
		s.metrics.IncJob(string(StatusFailed))
		return cloneJob(job), dErrors.Wrap(readErr, dErrors.CodeImportSourceUnreadable, "import source unreadable")
	}

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	// Snapshot before handing the job to the background goroutine, which owns
	// and mutates it from here on.
	snapshot := cloneJob(job)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(jobCtx, job, rows, req.OriginIP)
	}()

	return snapshot, nil
}

// Get loads a job by identifier.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*Job, error) {
	return s.jobs.Get(ctx, jobID)
}

// List returns all jobs submitted by the institution, oldest first.
func (s *Service) List(ctx context.Context, institutionID id.InstitutionID) ([]Job, error) {
	if institutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "institution ID required")
	}
	return s.jobs.ListByInstitution(ctx, institutionID)
}

// ConnectionRequest describes an external student records database to
// register as an import source. Credentials stay with the operator; only the
// descriptor is stored.
type ConnectionRequest struct {
	InstitutionID id.InstitutionID
	Name          string
	Driver        string
	Host          string
	Port          int
	DatabaseName  string
	Username      string
	Actor         id.ActorID
	OriginIP      string
}

// RegisterConnection stores a database connection descriptor for later
// import runs.
func (s *Service) RegisterConnection(ctx context.Context, req ConnectionRequest) (*DatabaseConnection, error) {
	if req.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "institution ID required")
	}
	if req.Actor.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "actor ID required")
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Host) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "connection name and host required")
	}

	conn := &DatabaseConnection{
		InstitutionID: req.InstitutionID,
		Name:          req.Name,
		Driver:        req.Driver,
		Host:          req.Host,
		Port:          req.Port,
		DatabaseName:  req.DatabaseName,
		Username:      req.Username,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.connections.Save(ctx, conn); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save connection descriptor")
	}

	err := s.recorder.Record(ctx, audit.Entry{
		Action:        audit.ActionModify,
		ActorID:       req.Actor,
		InstitutionID: req.InstitutionID,
		OriginIP:      req.OriginIP,
		Metadata: map[string]string{
			"event":           "connection_registered",
			"connection_id":   conn.ID.String(),
			"connection_name": conn.Name,
		},
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ListConnections returns the institution's registered connection descriptors.
func (s *Service) ListConnections(ctx context.Context, institutionID id.InstitutionID) ([]DatabaseConnection, error) {
	if institutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "institution ID required")
	}
	return s.connections.ListByInstitution(ctx, institutionID)
}

// Cancel stops a running job between rows. Rows already committed stay
// committed; the job ends failed with a cancellation reason. Cancelling a
// terminal job is a conflict.
func (s *Service) Cancel(ctx context.Context, jobID id.JobID) error {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return dErrors.New(dErrors.CodeConflict, "import job already finished")
	}

	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if !ok {
		return dErrors.New(dErrors.CodeConflict, "import job is not running")
	}
	cancel()
	return nil
}

// Wait blocks until all background processing has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) process(ctx context.Context, job *Job, rows []Row, originIP string) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
	}()

	ctx, cancelBudget := context.WithTimeout(ctx, s.budget)
	defer cancelBudget()

	job.Status = StatusProcessing
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logFail(job, err)
	}

	var (
		processed atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64

		errMu     sync.Mutex
		rowErrors []RowError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	// Mid-run counter snapshots, so polling the job shows live progress.
	// Processed is derived from the outcome counters and persisted strictly
	// monotonically, so an observer never sees counters regress or break
	// processed = success + error. Best effort: a failed write never disturbs
	// row processing.
	var (
		progressMu    sync.Mutex
		lastPersisted int
	)
	persistProgress := func() {
		errorRows := int(failed.Load())
		successRows := int(succeeded.Load())
		processedRows := successRows + errorRows

		progressMu.Lock()
		defer progressMu.Unlock()
		if processedRows <= lastPersisted {
			return
		}
		lastPersisted = processedRows

		snap := cloneJob(job)
		snap.SuccessRows = successRows
		snap.ErrorRows = errorRows
		snap.ProcessedRows = processedRows
		if err := s.jobs.Update(gctx, snap); err != nil {
			s.logFail(job, err)
		}
	}

	for i, row := range rows {
		// Cancellation and budget expiry take effect between rows; rows
		// already dispatched run to completion.
		if gctx.Err() != nil {
			break
		}

		rowNum, row := i+1, row
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}

			if reason, ok := s.importRow(gctx, job.InstitutionID, row); !ok {
				errMu.Lock()
				rowErrors = append(rowErrors, RowError{Row: rowNum, Reason: reason})
				errMu.Unlock()
				failed.Add(1)
				s.metrics.IncRow("error")
			} else {
				succeeded.Add(1)
				s.metrics.IncRow("success")
			}
			if n := processed.Add(1); n%progressEvery == 0 {
				persistProgress()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(rowErrors, func(i, j int) bool { return rowErrors[i].Row < rowErrors[j].Row })

	job.ProcessedRows = int(processed.Load())
	job.SuccessRows = int(succeeded.Load())
	job.ErrorRows = int(failed.Load())
	job.RowErrors = rowErrors

	switch {
	case ctx.Err() != nil && job.ProcessedRows < job.TotalRows:
		job.Status = StatusFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			job.FailureReason = "processing budget exceeded"
		} else {
			job.FailureReason = "cancelled"
		}
	default:
		job.Status = StatusCompleted
	}

	at := s.now().UTC()
	job.CompletedAt = &at

	// The job must reach its terminal state even when ctx was cancelled.
	finishCtx, cancelFinish := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancelFinish()

	if err := s.jobs.Update(finishCtx, job); err != nil {
		s.logFail(job, err)
		return
	}
	if err := s.auditJob(finishCtx, job, originIP, string(job.Status)); err != nil {
		s.logFail(job, err)
	}
	s.metrics.IncJob(string(job.Status))

	if s.logger != nil {
		s.logger.Info("import job finished",
			"job_id", job.ID,
			"status", job.Status,
			"total", job.TotalRows,
			"success", job.SuccessRows,
			"errors", job.ErrorRows,
		)
	}
}

// importRow validates one row and upserts the student. Returns the rejection
// reason when the row is invalid.
func (s *Service) importRow(ctx context.Context, institutionID id.InstitutionID, row Row) (string, bool) {
	for _, col := range requiredColumns {
		if row[col] == "" {
			return fmt.Sprintf("missing required field %q", col), false
		}
	}

	average, err := strconv.ParseFloat(row[ColAverage], 64)
	if err != nil {
		return fmt.Sprintf("invalid average %q", row[ColAverage]), false
	}
	if average < 0 || average > 20 {
		return fmt.Sprintf("average %.2f out of range [0, 20]", average), false
	}

	st := &student.Student{
		InstitutionID:  institutionID,
		Matricule:      row[ColMatricule],
		FirstName:      row[ColFirstName],
		LastName:       row[ColLastName],
		Email:          row[ColEmail],
		BirthDate:      row[ColBirthDate],
		BirthPlace:     row[ColBirthPlace],
		Discipline:     row[ColDiscipline],
		Specialization: row[ColSpecialization],
		AcademicYear:   row[ColAcademicYear],
		Average:        average,
		Grade:          student.GradeFor(average),
		Status:         student.StatusActive,
	}
	if err := s.students.Upsert(ctx, st); err != nil {
		return "failed to persist student record", false
	}
	return "", true
}

func (s *Service) auditJob(ctx context.Context, job *Job, originIP, event string) error {
	return s.recorder.Record(ctx, audit.Entry{
		Action:        audit.ActionModify,
		ActorID:       job.SubmittedBy,
		InstitutionID: job.InstitutionID,
		OriginIP:      originIP,
		Metadata: map[string]string{
			"job_id":      job.ID.String(),
			"source_name": job.SourceName,
			"event":       event,
			"total_rows":  strconv.Itoa(job.TotalRows),
			"error_rows":  strconv.Itoa(job.ErrorRows),
		},
	})
}

func (s *Service) logFail(job *Job, err error) {
	if s.logger != nil {
		s.logger.Error("import job persistence failed", "job_id", job.ID, "error", err)
	}
}
