package events

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/models"
)

func newTestRegistry() *Registry {
	return NewRegistry(common.GetLogger())
}

func drain(ch <-chan models.LogLine, n int) []models.LogLine {
	out := make([]models.LogLine, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, <-ch)
	}
	return out
}

func TestRegistry_AppendPreservesOrder(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	_, ch, cancel := r.Attach(jobID)
	defer cancel()

	for i := 0; i < 50; i++ {
		r.Append(jobID, models.NewTextLine(models.LevelInfo, fmt.Sprintf("line %d", i)))
	}

	got := drain(ch, 50)
	for i, line := range got {
		if want := fmt.Sprintf("line %d", i); line.Payload != want {
			t.Fatalf("line %d = %q, want %q", i, line.Payload, want)
		}
	}
}

func TestRegistry_BacklogReplay(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	r.Append(jobID, models.NewTextLine(models.LevelInfo, "first"))
	r.Append(jobID, models.NewTextLine(models.LevelInfo, "second"))

	// A late subscriber receives the full backlog in original order,
	// then lines published after attachment.
	backlog, ch, cancel := r.Attach(jobID)
	defer cancel()

	if len(backlog) != 2 || backlog[0].Payload != "first" || backlog[1].Payload != "second" {
		t.Fatalf("backlog = %+v, want [first second]", backlog)
	}

	r.Append(jobID, models.NewTextLine(models.LevelInfo, "third"))
	if line := <-ch; line.Payload != "third" {
		t.Fatalf("live line = %q, want third", line.Payload)
	}
}

func TestRegistry_SubscriberReceivesOnlyWhileAttached(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	r.Append(jobID, models.NewTextLine(models.LevelInfo, "before"))

	ch, cancel := r.Subscribe(jobID)

	r.Append(jobID, models.NewTextLine(models.LevelInfo, "during"))
	cancel()
	r.Append(jobID, models.NewTextLine(models.LevelInfo, "after"))

	var got []string
	for line := range ch {
		got = append(got, line.Payload)
	}
	if len(got) != 1 || got[0] != "during" {
		t.Fatalf("received %v, want [during]", got)
	}
}

func TestRegistry_CancelIsIdempotent(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	_, _, cancel := r.Attach(jobID)
	cancel()
	cancel() // second call must be a no-op, not a double close

	if n := r.SubscriberCount(jobID); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
}

func TestRegistry_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	// The slow subscriber never drains; its buffer overflows and lines
	// are dropped for it, but the healthy subscriber still gets everything.
	_, _, cancelSlow := r.Attach(jobID)
	defer cancelSlow()

	_, healthy, cancelHealthy := r.Attach(jobID)
	defer cancelHealthy()

	total := subscriberBuffer + 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			line := <-healthy
			if want := fmt.Sprintf("line %d", i); line.Payload != want {
				t.Errorf("line %d = %q, want %q", i, line.Payload, want)
				return
			}
		}
	}()

	for i := 0; i < total; i++ {
		r.Append(jobID, models.NewTextLine(models.LevelInfo, fmt.Sprintf("line %d", i)))
	}
	<-done
}

func TestRegistry_ConcurrentAppendAndSubscribe(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Append(jobID, models.NewTextLine(models.LevelInfo, "x"))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, cancel := r.Subscribe(jobID)
				cancel()
			}
		}()
	}
	wg.Wait()

	if got := len(r.Snapshot(jobID)); got != 400 {
		t.Fatalf("log length = %d, want 400", got)
	}
	if n := r.SubscriberCount(jobID); n != 0 {
		t.Fatalf("SubscriberCount = %d, want 0", n)
	}
}

func TestRegistry_IsolationBetweenJobs(t *testing.T) {
	r := newTestRegistry()
	jobA := common.NewJobID()
	jobB := common.NewJobID()

	chA, cancelA := r.Subscribe(jobA)
	defer cancelA()

	r.Append(jobB, models.NewTextLine(models.LevelInfo, "for B"))
	r.Append(jobA, models.NewTextLine(models.LevelInfo, "for A"))

	if line := <-chA; line.Payload != "for A" {
		t.Fatalf("job A subscriber got %q", line.Payload)
	}
	if len(r.Snapshot(jobB)) != 1 {
		t.Fatal("job B log should have exactly one line")
	}
}

func TestPublisher_ImageLine(t *testing.T) {
	r := newTestRegistry()
	jobID := common.NewJobID()

	r.Publisher(jobID).Image("png", "AAAA")

	lines := r.Snapshot(jobID)
	if len(lines) != 1 {
		t.Fatalf("log length = %d, want 1", len(lines))
	}
	line := lines[0]
	if line.Kind != models.LogKindImage {
		t.Fatalf("kind = %q, want image", line.Kind)
	}
	imageType, data, ok := models.DetectImageLine(line.Payload)
	if !ok || imageType != "png" || data != "AAAA" {
		t.Fatalf("DetectImageLine = (%q, %q, %v)", imageType, data, ok)
	}
}
