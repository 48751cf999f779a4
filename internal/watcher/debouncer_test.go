package watcher

import (
	"reflect"
	"sync"
	"testing"
	"time"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches []*ChangeReport
}

func (r *batchRecorder) fire(report *ChangeReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, report)
}

func (r *batchRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestNewDebouncer(t *testing.T) {
	d := NewDebouncer(100*time.Millisecond, func(*ChangeReport) {})
	if d.delay != 100*time.Millisecond {
		t.Errorf("delay = %v, want 100ms", d.delay)
	}
	if d.Pending() != 0 {
		t.Error("new debouncer should have nothing pending")
	}
}

func TestDebouncerMergesBurst(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.fire)

	for _, p := range []string{"Catalogs/A.xml", "Catalogs/B.xml", "Catalogs/A.xml"} {
		d.Add(&ChangeReport{Modified: []string{p}})
		time.Sleep(10 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if rec.count() != 1 {
		t.Fatalf("fired %d times, want 1", rec.count())
	}
	if got := rec.batches[0].Modified; !reflect.DeepEqual(got, []string{"Catalogs/A.xml", "Catalogs/B.xml"}) {
		t.Errorf("batch Modified = %v", got)
	}
}

func TestDebouncerIgnoresEmptyReports(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(time.Hour, rec.fire)
	d.Add(&ChangeReport{})
	d.Add(nil)
	if d.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", d.Pending())
	}
	d.Flush()
	if rec.count() != 0 {
		t.Error("empty reports should never fire")
	}
}

func TestDebouncerCancel(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(50*time.Millisecond, rec.fire)

	d.Add(&ChangeReport{Removed: []string{"Enums/B.xml"}})
	batch := d.Cancel()
	if batch == nil || !reflect.DeepEqual(batch.Removed, []string{"Enums/B.xml"}) {
		t.Errorf("Cancel returned %+v", batch)
	}

	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Error("batch should not fire after Cancel")
	}
	if d.Cancel() != nil {
		t.Error("second Cancel should return nil")
	}
}

func TestDebouncerFlush(t *testing.T) {
	rec := &batchRecorder{}
	d := NewDebouncer(time.Hour, rec.fire)

	d.Add(&ChangeReport{Added: []string{"Documents/C.xml"}})
	d.Add(&ChangeReport{Modified: []string{"Configuration.xml"}})
	if d.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", d.Pending())
	}
	d.Flush()

	if rec.count() != 1 {
		t.Fatalf("fired %d times on Flush, want 1", rec.count())
	}
	if d.Pending() != 0 {
		t.Error("nothing should be pending after Flush")
	}
	d.Flush()
	if rec.count() != 1 {
		t.Error("Flush with nothing pending should not fire")
	}
}
