package queue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"server/internal/domain"
)

type recordingObserver struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	reasons   []string
}

func (o *recordingObserver) JobCompleted(_ context.Context, job *domain.Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, job.ID)
}

func (o *recordingObserver) JobFailed(_ context.Context, job *domain.Job, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, job.ID)
	o.reasons = append(o.reasons, reason)
}

func TestDispatcherEmptyQueue(t *testing.T) {
	store, _ := testStore(t)
	d := NewDispatcher(store, zerolog.Nop())
	if res := d.RunOnce(context.Background()); res.Processed {
		t.Fatal("RunOnce reported work on an empty queue")
	}
}

func TestDispatcherCompletesJob(t *testing.T) {
	store, db := testStore(t)
	ctx := context.Background()

	d := NewDispatcher(store, zerolog.Nop())
	obs := &recordingObserver{}
	d.SetObserver(obs)

	var handled *domain.Job
	d.Register(domain.JobTypeGenerateImage, func(_ context.Context, job *domain.Job) error {
		handled = job
		return nil
	})

	id := enqueueTestJob(t, store, domain.JobTypeGenerateImage, 0)
	res := d.RunOnce(ctx)
	if !res.Processed || res.Outcome != OutcomeCompleted {
		t.Fatalf("RunOnce = %+v, want completed", res)
	}
	if handled == nil || handled.ID != id {
		t.Fatal("handler did not receive the claimed job")
	}
	if got := db.job(id).status; got != "completed" {
		t.Fatalf("status = %s, want completed", got)
	}
	if len(obs.completed) != 1 || obs.completed[0] != id {
		t.Fatalf("observer completions = %v", obs.completed)
	}
}

func TestDispatcherRequeuesOnTransientError(t *testing.T) {
	store, db := testStore(t)
	d := NewDispatcher(store, zerolog.Nop())
	d.Register(domain.JobTypeGenerateImage, func(context.Context, *domain.Job) error {
		return errors.New("provider timeout")
	})

	id := enqueueTestJob(t, store, domain.JobTypeGenerateImage, 2)
	res := d.RunOnce(context.Background())
	if res.Outcome != OutcomeRequeued {
		t.Fatalf("outcome = %s, want requeued", res.Outcome)
	}
	j := db.job(id)
	if j.status != "pending" || j.retryCount != 1 {
		t.Fatalf("status=%s retry_count=%d, want pending/1", j.status, j.retryCount)
	}
}

func TestDispatcherPermanentErrorSkipsBudget(t *testing.T) {
	store, db := testStore(t)
	d := NewDispatcher(store, zerolog.Nop())
	obs := &recordingObserver{}
	d.SetObserver(obs)
	d.Register(domain.JobTypeGenerateImage, func(context.Context, *domain.Job) error {
		return Permanent(errors.New("content policy violation"))
	})

	id := enqueueTestJob(t, store, domain.JobTypeGenerateImage, 3)
	res := d.RunOnce(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
	j := db.job(id)
	if j.status != "failed" || j.retryCount != 0 {
		t.Fatalf("status=%s retry_count=%d, want failed/0", j.status, j.retryCount)
	}
	if len(obs.failed) != 1 {
		t.Fatalf("observer failures = %v", obs.failed)
	}
}

func TestDispatcherPanicDoesNotStrandJob(t *testing.T) {
	store, db := testStore(t)
	d := NewDispatcher(store, zerolog.Nop())
	d.Register(domain.JobTypeGenerateImage, func(context.Context, *domain.Job) error {
		panic("boom")
	})

	id := enqueueTestJob(t, store, domain.JobTypeGenerateImage, 1)
	res := d.RunOnce(context.Background())
	if res.Outcome != OutcomeRequeued {
		t.Fatalf("outcome = %s, want requeued (budget remains)", res.Outcome)
	}
	j := db.job(id)
	if j.status != "pending" {
		t.Fatalf("status = %s, job stuck after panic", j.status)
	}
	if j.errorMessage == "" {
		t.Fatal("panic left no error message")
	}
}

func TestDispatcherUnroutableType(t *testing.T) {
	store, db := testStore(t)
	d := NewDispatcher(store, zerolog.Nop())
	obs := &recordingObserver{}
	d.SetObserver(obs)

	id := enqueueTestJob(t, store, domain.JobTypeGenerateAPlus, 3)
	res := d.RunOnce(context.Background())
	if res.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", res.Outcome)
	}
	// No handler can ever succeed; the budget must not be burned retrying.
	j := db.job(id)
	if j.status != "failed" || j.retryCount != 0 {
		t.Fatalf("status=%s retry_count=%d, want failed/0", j.status, j.retryCount)
	}
	if len(obs.reasons) != 1 {
		t.Fatalf("observer reasons = %v", obs.reasons)
	}
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("bad payload")
	wrapped := Permanent(base)
	if !IsPermanent(wrapped) {
		t.Fatal("IsPermanent(Permanent(err)) = false")
	}
	if !errors.Is(wrapped, base) {
		t.Fatal("Permanent broke the error chain")
	}
	if IsPermanent(base) {
		t.Fatal("IsPermanent(plain error) = true")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) != nil")
	}
}
