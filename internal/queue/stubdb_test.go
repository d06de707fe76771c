package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"server/internal/domain"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type fakeJob struct {
	id           string
	jobType      string
	status       string
	payload      []byte
	retryCount   int
	maxRetries   int
	errorMessage string
	ownerID      string
	projectID    string
	parentJobID  string
	createdAt    time.Time
	processedAt  *time.Time
	completedAt  *time.Time
}

func (j *fakeJob) scanInto(dest ...any) error {
	if len(dest) != 13 {
		return fmt.Errorf("job scan expects 13 destinations, got %d", len(dest))
	}
	*dest[0].(*string) = j.id
	*dest[1].(*domain.JobType) = domain.JobType(j.jobType)
	*dest[2].(*domain.JobStatus) = domain.JobStatus(j.status)
	*dest[3].(*json.RawMessage) = append(json.RawMessage(nil), j.payload...)
	*dest[4].(*int) = j.retryCount
	*dest[5].(*int) = j.maxRetries
	*dest[6].(*string) = j.errorMessage
	*dest[7].(*string) = j.ownerID
	*dest[8].(*string) = j.projectID
	*dest[9].(*string) = j.parentJobID
	*dest[10].(*time.Time) = j.createdAt
	*dest[11].(**time.Time) = j.processedAt
	*dest[12].(**time.Time) = j.completedAt
	return nil
}

type fakeProject struct {
	id            string
	ownerID       string
	title         string
	productType   string
	description   string
	features      []string
	brandKit      domain.BrandKit
	images        []domain.ProjectImage
	aplusModules  []domain.APlusModule
	status        string
	failureReason string
	packExpected  int
}

// stubDB is an in-memory SQLExecutor mirroring the documented semantics of
// every inline query the queue, project, and credits packages run.
type stubDB struct {
	mu       sync.Mutex
	seq      int
	clock    time.Time
	jobs     map[string]*fakeJob
	projects map[string]*fakeProject
	credits  map[string]int
	debits   []string
}

func newStubDB() *stubDB {
	return &stubDB{
		clock:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		jobs:     make(map[string]*fakeJob),
		projects: make(map[string]*fakeProject),
		credits:  make(map[string]int),
	}
}

// tick advances the fake clock so created_at ordering is deterministic.
func (s *stubDB) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *stubDB) addProject(p *fakeProject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.id] = p
}

func (s *stubDB) job(id string) *fakeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

func (s *stubDB) oldestPending() *fakeJob {
	var oldest *fakeJob
	for _, j := range s.jobs {
		if j.status != "pending" {
			continue
		}
		if oldest == nil || j.createdAt.Before(oldest.createdAt) {
			oldest = j
		}
	}
	return oldest
}

func (s *stubDB) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(query, "insert into jobs"):
		s.seq++
		j := &fakeJob{
			id:          fmt.Sprintf("job-%04d", s.seq),
			jobType:     args[0].(string),
			status:      "pending",
			payload:     append([]byte(nil), args[1].([]byte)...),
			maxRetries:  args[2].(int),
			ownerID:     args[3].(string),
			projectID:   args[4].(string),
			parentJobID: args[5].(string),
			createdAt:   s.tick(),
		}
		s.jobs[j.id] = j
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = j.id
			return nil
		}}

	case strings.Contains(query, "for update skip locked"):
		j := s.oldestPending()
		if j == nil {
			return stubRow{}
		}
		now := s.tick()
		j.status = "processing"
		j.processedAt = &now
		return stubRow{scan: j.scanInto}

	case strings.Contains(query, "set status = case when retry_count < max_retries"):
		j := s.jobs[args[0].(string)]
		if j == nil || j.status != "processing" {
			return stubRow{}
		}
		if j.retryCount < j.maxRetries {
			j.status = "pending"
			j.retryCount++
		} else {
			j.status = "failed"
		}
		j.errorMessage = args[1].(string)
		status, retries := j.status, j.retryCount
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*domain.JobStatus) = domain.JobStatus(status)
			*dest[1].(*int) = retries
			return nil
		}}

	case strings.Contains(query, "set status = 'failed', error_message"):
		j := s.jobs[args[0].(string)]
		if j == nil || j.status != "processing" {
			return stubRow{}
		}
		j.status = "failed"
		j.errorMessage = args[1].(string)
		status, retries := j.status, j.retryCount
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*domain.JobStatus) = domain.JobStatus(status)
			*dest[1].(*int) = retries
			return nil
		}}

	case strings.Contains(query, "filter (where status = 'pending')"):
		var pending, processing int
		for _, j := range s.jobs {
			if j.ownerID != args[0].(string) {
				continue
			}
			switch j.status {
			case "pending":
				pending++
			case "processing":
				processing++
			}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = pending
			*dest[1].(*int) = processing
			return nil
		}}

	case strings.Contains(query, "job_type <> 'generate-complete-pack'"):
		var n int
		for _, j := range s.jobs {
			if j.projectID == args[0].(string) &&
				(j.status == "pending" || j.status == "processing") &&
				j.jobType != "generate-complete-pack" &&
				j.parentJobID != args[1].(string) {
				n++
			}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = n
			return nil
		}}

	case strings.Contains(query, "status in ('pending', 'processing')"):
		var n int
		for _, j := range s.jobs {
			if j.projectID == args[0].(string) && (j.status == "pending" || j.status == "processing") {
				n++
			}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = n
			return nil
		}}

	case strings.Contains(query, "from jobs\nwhere id ="):
		j := s.jobs[args[0].(string)]
		if j == nil {
			return stubRow{}
		}
		return stubRow{scan: j.scanInto}

	case strings.Contains(query, "from projects"):
		p := s.projects[args[0].(string)]
		if p == nil {
			return stubRow{}
		}
		features, _ := json.Marshal(p.features)
		brand, _ := json.Marshal(p.brandKit)
		images, _ := json.Marshal(p.images)
		aplus, _ := json.Marshal(p.aplusModules)
		if p.features == nil {
			features = []byte("[]")
		}
		if p.images == nil {
			images = []byte("[]")
		}
		if p.aplusModules == nil {
			aplus = []byte("[]")
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = p.id
			*dest[1].(*string) = p.ownerID
			*dest[2].(*string) = p.title
			*dest[3].(*string) = p.productType
			*dest[4].(*string) = p.description
			*dest[5].(*[]byte) = features
			*dest[6].(*[]byte) = brand
			*dest[7].(*[]byte) = images
			*dest[8].(*[]byte) = aplus
			*dest[9].(*domain.ProjectStatus) = domain.ProjectStatus(p.status)
			*dest[10].(*string) = p.failureReason
			*dest[11].(*time.Time) = s.clock
			*dest[12].(*time.Time) = s.clock
			return nil
		}}

	case strings.Contains(query, "credit_balance - $2::int"):
		userID := args[0].(string)
		amount := args[1].(int)
		balance, ok := s.credits[userID]
		if !ok || balance < amount {
			return stubRow{}
		}
		s.credits[userID] = balance - amount
		s.debits = append(s.debits, args[2].(string))
		remaining := s.credits[userID]
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = remaining
			return nil
		}}

	case strings.Contains(query, "select credit_balance from users"):
		balance, ok := s.credits[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = balance
			return nil
		}}
	}

	return stubRow{scan: func(dest ...any) error {
		return fmt.Errorf("unsupported query: %s", firstLine(query))
	}}
}

func (s *stubDB) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(query, "set status = 'completed'"):
		j := s.jobs[args[0].(string)]
		if j == nil || j.status != "processing" {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		now := s.tick()
		j.status = "completed"
		j.completedAt = &now
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(query, "set processed_at = now()"):
		j := s.jobs[args[0].(string)]
		if j == nil || j.status != "processing" {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		now := s.tick()
		j.processedAt = &now
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(query, "set status = 'PROCESSING'"):
		p := s.projects[args[0].(string)]
		if p == nil {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		p.status = "PROCESSING"
		p.failureReason = ""
		p.packExpected = args[1].(int)
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(query, "set status = 'COMPLETED'"):
		p := s.projects[args[0].(string)]
		if p == nil || p.status != "PROCESSING" || p.packExpected == 0 {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		var completed int
		for _, j := range s.jobs {
			if j.parentJobID == args[1].(string) && j.status == "completed" {
				completed++
			}
		}
		if completed != p.packExpected {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		p.status = "COMPLETED"
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(query, "set status = 'FAILED'"):
		p := s.projects[args[0].(string)]
		if p == nil || p.status != "PROCESSING" {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		p.status = "FAILED"
		if p.failureReason == "" {
			p.failureReason = args[1].(string)
		}
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(query, "images = coalesce(images, '[]'::jsonb)"):
		p := s.projects[args[0].(string)]
		if p == nil {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		var imgs []domain.ProjectImage
		if err := json.Unmarshal(args[1].([]byte), &imgs); err != nil {
			return pgconn.CommandTag{}, err
		}
		p.images = append(p.images, imgs...)
		return pgconn.NewCommandTag("UPDATE 1"), nil

	case strings.Contains(query, "aplus_modules = $2::jsonb"):
		p := s.projects[args[0].(string)]
		if p == nil {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}
		var modules []domain.APlusModule
		if err := json.Unmarshal(args[1].([]byte), &modules); err != nil {
			return pgconn.CommandTag{}, err
		}
		p.aplusModules = modules
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}

	return pgconn.CommandTag{}, fmt.Errorf("unsupported exec: %s", firstLine(query))
}

func (s *stubDB) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(query, "processed_at < now() -"):
		var reclaimed []*fakeJob
		for _, j := range s.jobs {
			if j.status != "processing" || j.processedAt == nil {
				continue
			}
			// The fake clock only moves when rows change; treat any
			// processing job stamped before the current instant as stuck.
			if j.processedAt.Before(s.clock) {
				reclaimed = append(reclaimed, j)
			}
		}
		rows := &stubRows{}
		for _, j := range reclaimed {
			if j.retryCount < j.maxRetries {
				j.status = "pending"
				j.retryCount++
			} else {
				j.status = "failed"
			}
			j.errorMessage = "processing timeout exceeded"
			id := j.id
			rows.scans = append(rows.scans, func(dest ...any) error {
				*dest[0].(*string) = id
				return nil
			})
		}
		return rows, nil

	case strings.Contains(query, "where parent_job_id = $1::uuid"):
		var jobs []*fakeJob
		for _, j := range s.jobs {
			if j.parentJobID == args[0].(string) && j.parentJobID != "" {
				jobs = append(jobs, j)
			}
		}
		for i := 0; i < len(jobs); i++ {
			for k := i + 1; k < len(jobs); k++ {
				if jobs[k].createdAt.Before(jobs[i].createdAt) {
					jobs[i], jobs[k] = jobs[k], jobs[i]
				}
			}
		}
		rows := &stubRows{}
		for _, j := range jobs {
			rows.scans = append(rows.scans, j.scanInto)
		}
		return rows, nil

	case strings.Contains(query, "order by created_at asc"):
		var jobs []*fakeJob
		for _, j := range s.jobs {
			if j.projectID == args[0].(string) {
				jobs = append(jobs, j)
			}
		}
		for i := 0; i < len(jobs); i++ {
			for k := i + 1; k < len(jobs); k++ {
				if jobs[k].createdAt.Before(jobs[i].createdAt) {
					jobs[i], jobs[k] = jobs[k], jobs[i]
				}
			}
		}
		rows := &stubRows{}
		for _, j := range jobs {
			rows.scans = append(rows.scans, j.scanInto)
		}
		return rows, nil
	}

	return nil, fmt.Errorf("unsupported query: %s", firstLine(query))
}

type stubRows struct {
	scans []func(dest ...any) error
	pos   int
}

func (r *stubRows) Next() bool {
	if r.pos >= len(r.scans) {
		return false
	}
	r.pos++
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	return r.scans[r.pos-1](dest...)
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, fmt.Errorf("not supported") }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i >= 0 {
		return q[:i]
	}
	return q
}
