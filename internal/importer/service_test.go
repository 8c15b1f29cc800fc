package importer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trustdoc/internal/audit"
	"trustdoc/internal/student"
	id "trustdoc/pkg/domain"
	dErrors "trustdoc/pkg/domain-errors"
	"trustdoc/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	jobs       *InMemoryStore
	students   *student.InMemoryStore
	auditStore *audit.InMemoryStore
}

func (s *ServiceSuite) SetupTest() {
	s.jobs = NewInMemoryStore()
	s.students = student.NewInMemoryStore()
	s.auditStore = audit.NewInMemoryStore()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) newService(opts ...ServiceOption) *Service {
	base := []ServiceOption{WithWorkers(4)}
	return NewService(s.jobs, s.students, audit.NewRecorder(s.auditStore), append(base, opts...)...)
}

// buildCSV produces n student rows; rows listed in badRows get an out-of-range
// average so validation rejects them.
func buildCSV(n int, badRows ...int) string {
	bad := make(map[int]bool, len(badRows))
	for _, r := range badRows {
		bad[r] = true
	}

	var b strings.Builder
	b.WriteString("matricule,first_name,last_name,birth_date,birth_place,discipline,average,academic_year\n")
	for i := 1; i <= n; i++ {
		average := "12.5"
		if bad[i] {
			average = "25"
		}
		fmt.Fprintf(&b, "MAT-%04d,Prénom%d,Nom%d,2001-01-01,Dakar,Informatique,%s,2023-2024\n", i, i, i, average)
	}
	return b.String()
}

func (s *ServiceSuite) submit(svc *Service, sourceName, data string) *Job {
	job, err := svc.Submit(context.Background(), SubmitRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Source:        NewCSVSource(sourceName, strings.NewReader(data)),
		FileSize:      int64(len(data)),
		Actor:         testutil.TestIDs.ActorID1,
		OriginIP:      "203.0.113.7",
	})
	s.Require().NoError(err)
	return job
}

func (s *ServiceSuite) TestImportWithRowErrors() {
	svc := s.newService()

	job := s.submit(svc, "students.csv", buildCSV(450, 10, 87))
	s.Equal(450, job.TotalRows)
	svc.Wait()

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)

	s.Equal(StatusCompleted, final.Status, "row errors never fail the job")
	s.Equal(450, final.ProcessedRows)
	s.Equal(448, final.SuccessRows)
	s.Equal(2, final.ErrorRows)
	s.Equal(final.ProcessedRows, final.SuccessRows+final.ErrorRows)
	s.Require().NotNil(final.CompletedAt)

	s.Require().Len(final.RowErrors, 2)
	s.Equal(10, final.RowErrors[0].Row)
	s.Equal(87, final.RowErrors[1].Row)
	s.Contains(final.RowErrors[0].Reason, "out of range")

	count, err := s.students.CountByInstitution(context.Background(), testutil.TestIDs.InstitutionID1)
	s.Require().NoError(err)
	s.Equal(448, count)
}

func (s *ServiceSuite) TestImportDeterministicAcrossWorkerCounts() {
	for _, workers := range []int{1, 8} {
		s.SetupTest()
		svc := s.newService(WithWorkers(workers))

		job := s.submit(svc, "students.csv", buildCSV(120, 5, 60, 99))
		svc.Wait()

		final, err := svc.Get(context.Background(), job.ID)
		s.Require().NoError(err)
		s.Equal(117, final.SuccessRows, "workers=%d", workers)
		s.Equal(3, final.ErrorRows, "workers=%d", workers)
		s.Equal([]RowError{
			{Row: 5, Reason: final.RowErrors[0].Reason},
			{Row: 60, Reason: final.RowErrors[1].Reason},
			{Row: 99, Reason: final.RowErrors[2].Reason},
		}, final.RowErrors, "workers=%d", workers)
	}
}

func (s *ServiceSuite) TestSubmitReturnsDetachedSnapshot() {
	svc := s.newService()

	job := s.submit(svc, "students.csv", buildCSV(200))
	s.Equal(StatusPending, job.Status)
	s.Equal(0, job.ProcessedRows)

	// The returned job must be safe to read while background processing
	// mutates its own copy.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 1000 {
			_ = job.Status
			_ = job.ProcessedRows + job.SuccessRows + job.ErrorRows
		}
	}()
	svc.Wait()
	<-done

	s.Equal(StatusPending, job.Status, "snapshot is untouched by processing")
	s.Equal(0, job.ProcessedRows)

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, final.Status)
}

func (s *ServiceSuite) TestRaggedRowIsRowError() {
	svc := s.newService()

	data := "matricule,first_name,last_name,birth_date,birth_place,discipline,average,academic_year\n" +
		"MAT-001,Aminata,Diallo,2001-01-01,Dakar,Informatique,12,2023-2024\n" +
		"MAT-002,Moussa\n" // truncated row

	job := s.submit(svc, "students.csv", data)
	svc.Wait()

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, final.Status, "a short row never kills the batch")
	s.Equal(1, final.SuccessRows)
	s.Equal(1, final.ErrorRows)
	s.Require().Len(final.RowErrors, 1)
	s.Equal(2, final.RowErrors[0].Row)
	s.Contains(final.RowErrors[0].Reason, "missing required field")
}

func (s *ServiceSuite) TestProgressPersistedMidRun() {
	rec := &recordingJobStore{Store: s.jobs}
	svc := NewService(rec, s.students, audit.NewRecorder(s.auditStore), WithWorkers(4))

	job := s.submit(svc, "students.csv", buildCSV(120))
	svc.Wait()

	rec.mu.Lock()
	snapshots := append([]Job(nil), rec.snapshots...)
	rec.mu.Unlock()

	var sawProgress bool
	last := 0
	for _, snap := range snapshots {
		if snap.ProcessedRows == 0 {
			continue
		}
		if snap.Status == StatusProcessing && snap.ProcessedRows < job.TotalRows {
			sawProgress = true
		}
		s.Equal(snap.ProcessedRows, snap.SuccessRows+snap.ErrorRows)
		s.GreaterOrEqual(snap.ProcessedRows, last, "persisted counters never regress")
		s.LessOrEqual(snap.ProcessedRows, job.TotalRows)
		last = snap.ProcessedRows
	}
	s.True(sawProgress, "counters are visible while the job is still processing")
}

func (s *ServiceSuite) TestReimportIdempotent() {
	svc := s.newService()

	s.submit(svc, "students.csv", buildCSV(50))
	svc.Wait()
	job := s.submit(svc, "students.csv", buildCSV(50))
	svc.Wait()

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, final.Status)
	s.Equal(50, final.SuccessRows)

	count, err := s.students.CountByInstitution(context.Background(), testutil.TestIDs.InstitutionID1)
	s.Require().NoError(err)
	s.Equal(50, count, "matricule-keyed upsert absorbs the re-import")
}

func (s *ServiceSuite) TestDuplicateActiveImportRejected() {
	svc := s.newService(WithWorkers(1))
	slow := &slowStudentStore{Store: s.students, delay: 5 * time.Millisecond}
	svc.students = slow

	s.submit(svc, "students.csv", buildCSV(100))

	_, err := svc.Submit(context.Background(), SubmitRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Source:        NewCSVSource("students.csv", strings.NewReader(buildCSV(10))),
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateActiveImport))

	// A different source name is fine while the first job runs.
	other := s.submit(svc, "transfers.csv", buildCSV(10))
	s.NotEqual(JobStatus(""), other.Status)

	svc.Wait()

	// Once the first job is terminal the same source may be submitted again.
	resubmit := s.submit(svc, "students.csv", buildCSV(10))
	svc.Wait()
	final, err := svc.Get(context.Background(), resubmit.ID)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, final.Status)
}

func (s *ServiceSuite) TestCancelFreezesCounters() {
	svc := s.newService(WithWorkers(1))
	svc.students = &slowStudentStore{Store: s.students, delay: 10 * time.Millisecond}

	job := s.submit(svc, "students.csv", buildCSV(500))

	time.Sleep(30 * time.Millisecond)
	s.Require().NoError(svc.Cancel(context.Background(), job.ID))
	svc.Wait()

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(StatusFailed, final.Status)
	s.Equal("cancelled", final.FailureReason)
	s.Less(final.ProcessedRows, final.TotalRows)
	s.Equal(final.ProcessedRows, final.SuccessRows+final.ErrorRows)
	s.Require().NotNil(final.CompletedAt)

	// Counters stay frozen after the terminal transition.
	frozen := final.ProcessedRows
	time.Sleep(30 * time.Millisecond)
	again, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(frozen, again.ProcessedRows)
	s.Equal(final.CompletedAt.UnixNano(), again.CompletedAt.UnixNano(), "completedAt set exactly once")
}

func (s *ServiceSuite) TestCancelTerminalJobConflicts() {
	svc := s.newService()
	job := s.submit(svc, "students.csv", buildCSV(5))
	svc.Wait()

	err := svc.Cancel(context.Background(), job.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestBudgetExpiryFailsJob() {
	svc := s.newService(WithWorkers(1), WithBudget(20*time.Millisecond))
	svc.students = &slowStudentStore{Store: s.students, delay: 5 * time.Millisecond}

	job := s.submit(svc, "students.csv", buildCSV(500))
	svc.Wait()

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(StatusFailed, final.Status)
	s.Equal("processing budget exceeded", final.FailureReason)
	s.Less(final.ProcessedRows, final.TotalRows)
}

func (s *ServiceSuite) TestUnreadableSource() {
	svc := s.newService()

	job, err := svc.Submit(context.Background(), SubmitRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Source:        NewCSVSource("broken.csv", strings.NewReader("not,a,student\nfile")),
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeImportSourceUnreadable))

	// The failed attempt is still visible as a terminal job.
	s.Require().NotNil(job)
	s.Equal(StatusFailed, job.Status)
	s.NotEmpty(job.FailureReason)
	s.NotNil(job.CompletedAt)
}

func (s *ServiceSuite) TestSubmitValidation() {
	svc := s.newService()

	_, err := svc.Submit(context.Background(), SubmitRequest{
		Source: NewCSVSource("students.csv", strings.NewReader(buildCSV(1))),
		Actor:  testutil.TestIDs.ActorID1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "missing institution")

	_, err = svc.Submit(context.Background(), SubmitRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Source:        NewCSVSource("students.csv", strings.NewReader(buildCSV(1))),
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "missing actor")
}

func (s *ServiceSuite) TestAuditTrailForJobLifecycle() {
	svc := s.newService()
	job := s.submit(svc, "students.csv", buildCSV(3))
	svc.Wait()

	entries, err := s.auditStore.Query(context.Background(), audit.Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Action:        audit.ActionModify,
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 2, "one entry on submit, one on the terminal transition")
	s.Equal("submitted", entries[0].Metadata["event"])
	s.Equal("completed", entries[1].Metadata["event"])
	s.Equal(job.ID.String(), entries[0].Metadata["job_id"])
}

func (s *ServiceSuite) TestRowValidation() {
	svc := s.newService()

	data := "matricule,first_name,last_name,birth_date,birth_place,discipline,average,academic_year\n" +
		",Aminata,Diallo,2001-01-01,Dakar,Informatique,12,2023-2024\n" + // missing matricule
		"MAT-002,Moussa,Traoré,2001-01-01,Bamako,Maths,abc,2023-2024\n" + // unparseable average
		"MAT-003,Awa,Ndiaye,2001-01-01,Thiès,Physique,-1,2023-2024\n" + // negative average
		"MAT-004,Fatou,Sow,2001-01-01,Dakar,Chimie,18.25,2023-2024\n" // valid

	job := s.submit(svc, "students.csv", data)
	svc.Wait()

	final, err := svc.Get(context.Background(), job.ID)
	s.Require().NoError(err)
	s.Equal(StatusCompleted, final.Status)
	s.Equal(1, final.SuccessRows)
	s.Equal(3, final.ErrorRows)

	st, err := s.students.FindByMatricule(context.Background(), testutil.TestIDs.InstitutionID1, "MAT-004")
	s.Require().NoError(err)
	s.Equal(student.GradeTresBien, st.Grade, "grade recomputed from the average")
}

func (s *ServiceSuite) TestListJobs() {
	svc := s.newService()

	s.submit(svc, "first.csv", buildCSV(2))
	s.submit(svc, "second.csv", buildCSV(3))
	svc.Wait()

	jobs, err := svc.List(context.Background(), testutil.TestIDs.InstitutionID1)
	s.Require().NoError(err)
	s.Require().Len(jobs, 2)
	s.Equal("first.csv", jobs[0].SourceName)
	s.Equal("second.csv", jobs[1].SourceName)

	_, err = svc.List(context.Background(), id.InstitutionID{})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *ServiceSuite) TestRegisterAndListConnections() {
	svc := s.newService()

	conn, err := svc.RegisterConnection(context.Background(), ConnectionRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Name:          "scolarité",
		Driver:        "postgres",
		Host:          "db.univ.example",
		Port:          5432,
		DatabaseName:  "scolarite",
		Username:      "readonly",
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.Require().NoError(err)
	s.False(conn.ID.IsNil())
	s.True(conn.IsActive)

	conns, err := svc.ListConnections(context.Background(), testutil.TestIDs.InstitutionID1)
	s.Require().NoError(err)
	s.Require().Len(conns, 1)
	s.Equal("scolarité", conns[0].Name)

	// Registration leaves a trace in the audit trail.
	entries, err := s.auditStore.Query(context.Background(), audit.Filter{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Action:        audit.ActionModify,
	})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal("connection_registered", entries[0].Metadata["event"])
}

func (s *ServiceSuite) TestRegisterConnectionValidation() {
	svc := s.newService()

	_, err := svc.RegisterConnection(context.Background(), ConnectionRequest{
		InstitutionID: testutil.TestIDs.InstitutionID1,
		Actor:         testutil.TestIDs.ActorID1,
	})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

// recordingJobStore captures every persisted job snapshot.
type recordingJobStore struct {
	Store
	mu        sync.Mutex
	snapshots []Job
}

func (s *recordingJobStore) Update(ctx context.Context, job *Job) error {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, *job)
	s.mu.Unlock()
	return s.Store.Update(ctx, job)
}

// slowStudentStore delays upserts so tests can observe in-flight jobs.
type slowStudentStore struct {
	student.Store
	delay time.Duration
}

func (s *slowStudentStore) Upsert(ctx context.Context, st *student.Student) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Store.Upsert(ctx, st)
}
