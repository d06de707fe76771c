package pack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type fakeChild struct {
	id        string
	jobType   domain.JobType
	payload   []byte
	status    domain.JobStatus
	projectID string
	parent    string
}

func (c *fakeChild) asJob() *domain.Job {
	return &domain.Job{
		ID:          c.id,
		Type:        c.jobType,
		Status:      c.status,
		Payload:     c.payload,
		ProjectID:   c.projectID,
		ParentJobID: c.parent,
	}
}

type fakeJobStore struct {
	children     []*fakeChild
	siblings     int
	enqueueErr   error
	failAfter    int
	afterEnqueue func(id string)
}

func (s *fakeJobStore) EnqueueChild(_ context.Context, t domain.JobType, payload any, _, projectID, parentJobID string) (string, error) {
	if s.enqueueErr != nil && len(s.children) >= s.failAfter {
		return "", s.enqueueErr
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	id := fmt.Sprintf("child-%d", len(s.children)+1)
	s.children = append(s.children, &fakeChild{
		id:        id,
		jobType:   t,
		payload:   raw,
		status:    domain.JobStatusPending,
		projectID: projectID,
		parent:    parentJobID,
	})
	if s.afterEnqueue != nil {
		s.afterEnqueue(id)
	}
	return id, nil
}

func (s *fakeJobStore) ListChildren(_ context.Context, parentJobID string) ([]domain.Job, error) {
	var jobs []domain.Job
	for _, c := range s.children {
		if c.parent == parentJobID && c.parent != "" {
			jobs = append(jobs, *c.asJob())
		}
	}
	return jobs, nil
}

func (s *fakeJobStore) CountActiveSiblings(_ context.Context, _, excludeParentJobID string) (int, error) {
	n := s.siblings
	for _, c := range s.children {
		if c.parent != excludeParentJobID && !c.status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (s *fakeJobStore) child(id string) *fakeChild {
	for _, c := range s.children {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (s *fakeJobStore) completeChild(id string) *domain.Job {
	c := s.child(id)
	c.status = domain.JobStatusCompleted
	return c.asJob()
}

func (s *fakeJobStore) failChild(id string) *domain.Job {
	c := s.child(id)
	c.status = domain.JobStatusFailed
	return c.asJob()
}

// fakeProjects mirrors the guarded status statements: completion counts the
// run's completed children against the recorded expectation, failure reasons
// are set once, and neither transition fires outside PROCESSING.
type fakeProjects struct {
	store    *fakeJobStore
	status   domain.ProjectStatus
	expected int
	reasons  []string
}

func (p *fakeProjects) Get(context.Context, string) (*domain.Project, error) {
	return &domain.Project{ID: "proj-1", Status: p.status}, nil
}

func (p *fakeProjects) SetProcessing(_ context.Context, _ string, expectedChildren int) error {
	p.status = domain.ProjectStatusProcessing
	p.expected = expectedChildren
	return nil
}

func (p *fakeProjects) CompleteWhenPackDone(_ context.Context, _, packJobID string) (bool, error) {
	if p.status != domain.ProjectStatusProcessing || p.expected == 0 {
		return false, nil
	}
	completed := 0
	for _, c := range p.store.children {
		if c.parent == packJobID && c.status == domain.JobStatusCompleted {
			completed++
		}
	}
	if completed != p.expected {
		return false, nil
	}
	p.status = domain.ProjectStatusCompleted
	return true, nil
}

func (p *fakeProjects) SetFailed(_ context.Context, _ string, reason string) error {
	if p.status != domain.ProjectStatusProcessing {
		return nil
	}
	p.status = domain.ProjectStatusFailed
	if len(p.reasons) == 0 {
		p.reasons = append(p.reasons, reason)
	}
	return nil
}

var defaultPackTypes = []domain.ImageType{
	domain.ImageTypeMain,
	domain.ImageTypeInfo,
	domain.ImageTypeFeature,
	domain.ImageTypeLifestyle,
}

func newTestOrchestrator(store *fakeJobStore, projects *fakeProjects) *Orchestrator {
	projects.store = store
	return NewOrchestrator(store, projects, defaultPackTypes, zerolog.Nop())
}

func TestEnqueuePackFansOut(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusDraft}
	o := newTestOrchestrator(store, projects)

	ids, err := o.EnqueuePack(context.Background(), Request{
		PackJobID:    "pack-1",
		ProjectID:    "proj-1",
		OwnerID:      "owner-1",
		IncludeAPlus: true,
	})
	if err != nil {
		t.Fatalf("enqueue pack: %v", err)
	}
	if len(ids) != 5 {
		t.Fatalf("children = %d, want 4 images + 1 aplus", len(ids))
	}
	if projects.status != domain.ProjectStatusProcessing {
		t.Fatalf("project status = %s, want PROCESSING", projects.status)
	}
	if projects.expected != 5 {
		t.Fatalf("expected children recorded = %d, want 5", projects.expected)
	}

	var images, aplus int
	for _, c := range store.children {
		if c.parent != "pack-1" {
			t.Fatalf("child %s parent = %q, want pack-1", c.id, c.parent)
		}
		switch c.jobType {
		case domain.JobTypeGenerateImage:
			images++
		case domain.JobTypeGenerateAPlus:
			aplus++
		default:
			t.Fatalf("unexpected child type %s", c.jobType)
		}
	}
	if images != 4 || aplus != 1 {
		t.Fatalf("images=%d aplus=%d", images, aplus)
	}
}

func TestEnqueuePackCustomTypes(t *testing.T) {
	store := &fakeJobStore{}
	o := newTestOrchestrator(store, &fakeProjects{})

	ids, err := o.EnqueuePack(context.Background(), Request{
		PackJobID:  "pack-1",
		ProjectID:  "proj-1",
		OwnerID:    "owner-1",
		ImageTypes: []domain.ImageType{domain.ImageTypeMain},
	})
	if err != nil {
		t.Fatalf("enqueue pack: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("children = %d, want 1", len(ids))
	}
}

func TestEnqueuePackDuplicate(t *testing.T) {
	store := &fakeJobStore{siblings: 2}
	projects := &fakeProjects{status: domain.ProjectStatusProcessing}
	o := newTestOrchestrator(store, projects)

	_, err := o.EnqueuePack(context.Background(), Request{PackJobID: "pack-2", ProjectID: "proj-1", OwnerID: "owner-1"})
	if !errors.Is(err, domain.ErrDuplicatePack) {
		t.Fatalf("err = %v, want ErrDuplicatePack", err)
	}
	if len(store.children) != 0 {
		t.Fatal("duplicate pack still enqueued children")
	}
}

func TestEnqueuePackAbortsMidFanout(t *testing.T) {
	store := &fakeJobStore{enqueueErr: errors.New("connection reset"), failAfter: 2}
	projects := &fakeProjects{status: domain.ProjectStatusDraft}
	o := newTestOrchestrator(store, projects)

	_, err := o.EnqueuePack(context.Background(), Request{PackJobID: "pack-1", ProjectID: "proj-1", OwnerID: "owner-1"})
	if err == nil {
		t.Fatal("expected enqueue error")
	}
	if projects.status != domain.ProjectStatusFailed {
		t.Fatalf("project status = %s, want FAILED after aborted fanout", projects.status)
	}
}

func TestEnqueuePackEmpty(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{}
	projects.store = store
	o := NewOrchestrator(store, projects, nil, zerolog.Nop())
	if _, err := o.EnqueuePack(context.Background(), Request{PackJobID: "pack-1", ProjectID: "proj-1"}); err == nil {
		t.Fatal("empty pack must be rejected")
	}
}

func TestHandleJobDuplicateIsNoOp(t *testing.T) {
	store := &fakeJobStore{siblings: 1}
	o := newTestOrchestrator(store, &fakeProjects{status: domain.ProjectStatusProcessing})

	payload, _ := json.Marshal(domain.PackJobPayload{ProjectID: "proj-1", IncludeAPlus: true})
	err := o.HandleJob(context.Background(), &domain.Job{
		ID:      "pack-2",
		Type:    domain.JobTypeGeneratePack,
		Payload: payload,
		OwnerID: "owner-1",
	})
	if err != nil {
		t.Fatalf("duplicate pack job must not fail, got %v", err)
	}
	if len(store.children) != 0 {
		t.Fatal("duplicate pack job enqueued children")
	}
}

func TestJobCompletedAggregation(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusDraft}
	o := newTestOrchestrator(store, projects)
	ctx := context.Background()

	ids, err := o.EnqueuePack(ctx, Request{
		PackJobID:  "pack-1",
		ProjectID:  "proj-1",
		OwnerID:    "owner-1",
		ImageTypes: []domain.ImageType{domain.ImageTypeMain, domain.ImageTypeInfo},
	})
	if err != nil {
		t.Fatalf("enqueue pack: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("children = %d, want 2", len(ids))
	}

	// One sibling still pending: no status change.
	o.JobCompleted(ctx, store.completeChild(ids[0]))
	if projects.status != domain.ProjectStatusProcessing {
		t.Fatalf("status = %s, want PROCESSING while siblings run", projects.status)
	}

	// Last child done: the pack completes.
	o.JobCompleted(ctx, store.completeChild(ids[1]))
	if projects.status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", projects.status)
	}
}

func TestJobCompletedIgnoresPackJob(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusProcessing, expected: 0}
	o := newTestOrchestrator(store, projects)

	o.JobCompleted(context.Background(), &domain.Job{
		ID:        "pack-1",
		Type:      domain.JobTypeGeneratePack,
		ProjectID: "proj-1",
	})
	if projects.status != domain.ProjectStatusProcessing {
		t.Fatalf("status = %s, pack job completion must not complete the project", projects.status)
	}
}

func TestJobCompletedIgnoresStandaloneJob(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusProcessing, expected: 0}
	o := newTestOrchestrator(store, projects)

	// A job enqueued directly through the API carries no parent and must not
	// drive pack aggregation.
	o.JobCompleted(context.Background(), &domain.Job{
		ID:        "job-7",
		Type:      domain.JobTypeGenerateImage,
		ProjectID: "proj-1",
	})
	if projects.status != domain.ProjectStatusProcessing {
		t.Fatalf("status = %s, standalone completion must not complete the project", projects.status)
	}
}

func TestJobFailedFailFast(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusDraft}
	o := newTestOrchestrator(store, projects)
	ctx := context.Background()

	ids, err := o.EnqueuePack(ctx, Request{
		PackJobID:    "pack-1",
		ProjectID:    "proj-1",
		OwnerID:      "owner-1",
		IncludeAPlus: true,
	})
	if err != nil {
		t.Fatalf("enqueue pack: %v", err)
	}

	o.JobFailed(ctx, store.failChild(ids[1]), "content policy violation")
	if projects.status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, want FAILED even with siblings in flight", projects.status)
	}

	// A later sibling failure never overwrites the first reason.
	o.JobFailed(ctx, store.failChild(ids[2]), "provider timeout")
	if len(projects.reasons) != 1 || projects.reasons[0] != "content policy violation" {
		t.Fatalf("reasons = %v, want first reason only", projects.reasons)
	}

	// Siblings completing after the failure cannot resurrect the project.
	for _, id := range []string{ids[0], ids[3], ids[4]} {
		o.JobCompleted(ctx, store.completeChild(id))
	}
	if projects.status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, failed pack must stay failed", projects.status)
	}
}

func TestChildCompletionMidFanout(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusDraft}
	o := newTestOrchestrator(store, projects)
	ctx := context.Background()

	// Another worker claims and finishes the first child before the second
	// one is even enqueued. The project must not complete off the partial
	// child set.
	store.afterEnqueue = func(id string) {
		if id != "child-1" {
			return
		}
		o.JobCompleted(ctx, store.completeChild(id))
		if projects.status != domain.ProjectStatusProcessing {
			t.Fatalf("status = %s mid-fanout, want PROCESSING", projects.status)
		}
	}

	ids, err := o.EnqueuePack(ctx, Request{
		PackJobID:  "pack-1",
		ProjectID:  "proj-1",
		OwnerID:    "owner-1",
		ImageTypes: []domain.ImageType{domain.ImageTypeMain, domain.ImageTypeInfo},
	})
	if err != nil {
		t.Fatalf("enqueue pack: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("children = %d, want 2", len(ids))
	}
	if projects.status != domain.ProjectStatusProcessing {
		t.Fatalf("status = %s after fanout, want PROCESSING", projects.status)
	}

	// The second child exhausts its budget: fail-fast still wins.
	o.JobFailed(ctx, store.failChild(ids[1]), "provider timeout")
	if projects.status != domain.ProjectStatusFailed {
		t.Fatalf("status = %s, want FAILED after terminal child failure", projects.status)
	}
	if len(projects.reasons) != 1 || projects.reasons[0] != "provider timeout" {
		t.Fatalf("reasons = %v", projects.reasons)
	}
}

func TestHandleJobResumesInterruptedFanout(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusProcessing, expected: 5}
	o := newTestOrchestrator(store, projects)
	ctx := context.Background()

	// Two children survived a worker crash mid-fanout; one already finished.
	mustEnqueue := func(t2 domain.JobType, payload any) string {
		id, err := store.EnqueueChild(ctx, t2, payload, "owner-1", "proj-1", "pack-1")
		if err != nil {
			t.Fatalf("seed child: %v", err)
		}
		return id
	}
	done := mustEnqueue(domain.JobTypeGenerateImage, domain.ImageJobPayload{ProjectID: "proj-1", ImageType: domain.ImageTypeMain})
	mustEnqueue(domain.JobTypeGenerateImage, domain.ImageJobPayload{ProjectID: "proj-1", ImageType: domain.ImageTypeInfo})
	store.completeChild(done)

	payload, _ := json.Marshal(domain.PackJobPayload{ProjectID: "proj-1", IncludeAPlus: true})
	err := o.HandleJob(ctx, &domain.Job{
		ID:      "pack-1",
		Type:    domain.JobTypeGeneratePack,
		Payload: payload,
		OwnerID: "owner-1",
	})
	if err != nil {
		t.Fatalf("resumed pack job: %v", err)
	}

	// Only the three missing children were added, none duplicated.
	if len(store.children) != 5 {
		t.Fatalf("children = %d, want 5 after resume", len(store.children))
	}
	byKey := map[string]int{}
	for _, c := range store.children {
		key, err := childKey(c.asJob())
		if err != nil {
			t.Fatalf("child key: %v", err)
		}
		byKey[key]++
	}
	for key, n := range byKey {
		if n != 1 {
			t.Fatalf("child %s enqueued %d times", key, n)
		}
	}
	if projects.status != domain.ProjectStatusProcessing {
		t.Fatalf("status = %s after resume, want PROCESSING", projects.status)
	}

	// The pack completes only once every expected child is done.
	for _, c := range store.children {
		if c.status == domain.JobStatusCompleted {
			continue
		}
		if projects.status != domain.ProjectStatusProcessing {
			t.Fatalf("status = %s before last child, want PROCESSING", projects.status)
		}
		o.JobCompleted(ctx, store.completeChild(c.id))
	}
	if projects.status != domain.ProjectStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED once all children finished", projects.status)
	}
}

func TestHandleJobResumeSkippedAfterFinalization(t *testing.T) {
	store := &fakeJobStore{}
	projects := &fakeProjects{status: domain.ProjectStatusFailed, expected: 3}
	o := newTestOrchestrator(store, projects)
	ctx := context.Background()

	if _, err := store.EnqueueChild(ctx, domain.JobTypeGenerateImage,
		domain.ImageJobPayload{ProjectID: "proj-1", ImageType: domain.ImageTypeMain},
		"owner-1", "proj-1", "pack-1"); err != nil {
		t.Fatalf("seed child: %v", err)
	}

	payload, _ := json.Marshal(domain.PackJobPayload{ProjectID: "proj-1"})
	err := o.HandleJob(ctx, &domain.Job{
		ID:      "pack-1",
		Type:    domain.JobTypeGeneratePack,
		Payload: payload,
		OwnerID: "owner-1",
	})
	if err != nil {
		t.Fatalf("resume against finalized project: %v", err)
	}
	if len(store.children) != 1 {
		t.Fatalf("children = %d, resume of a finalized run must not enqueue", len(store.children))
	}
}
