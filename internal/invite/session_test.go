package invite

import (
	"context"
	"sync"
	"testing"
)

func sessionInput(method Method, ev Event) Input {
	cal := testCalendar
	return Input{
		Invitation:      &Invitation{Method: method, Event: ev},
		Addresses:       []string{viewer},
		DefaultCalendar: &cal,
	}
}

func TestSession_PublishesReconciledModel(t *testing.T) {
	store := newFakeStore()
	r := NewReconciler(store, []CalendarRef{testCalendar}, nil)

	var mu sync.Mutex
	var published []Model
	s := NewSession(sessionInput(MethodRequest, testEvent("evt-1", 2)), r, func(m Model) {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, m)
	})

	initial := s.Start(context.Background())
	s.Wait()

	if initial.Pass != 1 || initial.FromStore != nil {
		t.Errorf("initial model = %+v, want pass 1 without stored event", initial)
	}
	final := s.Model()
	if final.FromStore == nil || final.FromStore.Sequence != 2 {
		t.Errorf("final model FromStore = %+v, want stored copy", final.FromStore)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(published) != 2 {
		t.Errorf("published %d models, want initial and reconciled", len(published))
	}
}

func TestSession_RetrySupersedesInFlightPass(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	rec := &countingRecorder{}
	r := NewReconciler(store, []CalendarRef{testCalendar}, rec)

	s := NewSession(sessionInput(MethodRequest, testEvent("evt-1", 1)), r, nil)
	s.Start(context.Background())
	<-store.entered

	// The first pass is stuck in the store; retrying cancels it and
	// starts pass 2.
	store.mu.Lock()
	store.block = nil
	store.mu.Unlock()
	retried := s.Retry(context.Background())
	s.Wait()

	if retried.Pass != 2 {
		t.Fatalf("Retry pass = %d, want 2", retried.Pass)
	}
	if got := s.Model().Pass; got != 2 {
		t.Errorf("published pass = %d, want 2", got)
	}
	if s.Model().Err != nil {
		t.Errorf("Err = %v, want nil", s.Model().Err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.staleDrops != 1 {
		t.Errorf("staleDrops = %d, want 1", rec.staleDrops)
	}
}

func TestSession_RetryRebuildsAfterError(t *testing.T) {
	store := newFakeStore()
	store.persistErr = errTest
	r := NewReconciler(store, []CalendarRef{testCalendar}, nil)
	s := NewSession(sessionInput(MethodRequest, testEvent("evt-1", 1)), r, nil)

	s.Start(context.Background())
	s.Wait()
	if s.Model().Err == nil || s.Model().Err.Kind != UpdatingError {
		t.Fatalf("Err = %v, want UPDATING_ERROR", s.Model().Err)
	}

	store.mu.Lock()
	store.persistErr = nil
	store.mu.Unlock()

	rebuilt := s.Retry(context.Background())
	if rebuilt.Err != nil {
		t.Errorf("rebuilt model carries %v, want a clean model", rebuilt.Err)
	}
	s.Wait()
	if s.Model().Err != nil {
		t.Errorf("Err after retry = %v, want nil", s.Model().Err)
	}
	if _, ok := store.get("evt-1"); !ok {
		t.Error("retry did not persist the invitation")
	}
}

func TestSession_CloseDropsLateResult(t *testing.T) {
	store := newFakeStore()
	block := make(chan struct{})
	store.block = block
	r := NewReconciler(store, []CalendarRef{testCalendar}, nil)

	updates := 0
	var mu sync.Mutex
	s := NewSession(sessionInput(MethodRequest, testEvent("evt-1", 1)), r, func(Model) {
		mu.Lock()
		defer mu.Unlock()
		updates++
	})
	s.Start(context.Background())
	s.Close()
	close(block)
	s.Wait()

	mu.Lock()
	defer mu.Unlock()
	if updates != 1 {
		t.Errorf("updates = %d, want only the initial model", updates)
	}
	if s.Model().FromStore != nil {
		t.Error("closed session published a late result")
	}
	if got := s.Retry(context.Background()); got.Pass != 1 {
		t.Errorf("Retry after Close started pass %d", got.Pass)
	}
}

func TestSession_PublishSkipsSupersededPass(t *testing.T) {
	r := NewReconciler(newFakeStore(), []CalendarRef{testCalendar}, nil)
	var delivered []uint64
	s := NewSession(Input{}, r, func(m Model) {
		delivered = append(delivered, m.Pass)
	})

	// A result of pass 1 that got past finish just as pass 2 began.
	s.mu.Lock()
	s.pass = 2
	s.mu.Unlock()
	s.publish(Model{Pass: 1})
	s.publish(Model{Pass: 2})

	if len(delivered) != 1 || delivered[0] != 2 {
		t.Errorf("delivered passes = %v, want only [2]", delivered)
	}

	s.Close()
	s.publish(Model{Pass: 2})
	if len(delivered) != 1 {
		t.Errorf("delivered after Close: %v", delivered)
	}
}

func TestSession_ClosedPassDoesNotWrite(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	store.entered = make(chan struct{}, 1)
	rec := &countingRecorder{}
	r := NewReconciler(store, []CalendarRef{testCalendar}, rec)

	s := NewSession(sessionInput(MethodRequest, testEvent("evt-1", 1)), r, nil)
	s.Start(context.Background())
	<-store.entered
	s.Close()
	s.Wait()

	if store.writes() != 0 {
		t.Errorf("writes after Close = %d, want 0", store.writes())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.downgrades != 0 {
		t.Errorf("fetch downgrades = %d, want 0 for a cancelled lookup", rec.downgrades)
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != OutcomeCancelled {
		t.Errorf("outcomes = %v, want [%s]", rec.outcomes, OutcomeCancelled)
	}
}
