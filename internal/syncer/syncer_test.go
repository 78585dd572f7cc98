package syncer

import (
	"context"
	"testing"

	"fm-sync/internal/checkpoint"
	"fm-sync/internal/schema"
)

func tbl(name string) *schema.Table {
	return &schema.Table{Name: name}
}

func testCoordinator(t *testing.T, opts Options) *Coordinator {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(nil, nil, nil, nil, nil, store, opts)
}

func TestStartKeyPrecedence(t *testing.T) {
	c := testCoordinator(t, Options{
		Resume:    true,
		StartFrom: map[string][]string{"ratcatalogue": {"IMG100"}},
	})
	if err := c.store.Save(&checkpoint.Checkpoint{Table: "ratcatalogue", LastKey: []string{"IMG050"}}); err != nil {
		t.Fatal(err)
	}

	// Explicit flag wins over the checkpoint and is inclusive.
	key, inclusive, err := c.startKey(tbl("ratcatalogue"))
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 1 || key[0] != "IMG100" {
		t.Errorf("expected IMG100, got %v", key)
	}
	if !inclusive {
		t.Error("explicit start key must be inclusive")
	}
}

func TestStartKeyFromCheckpoint(t *testing.T) {
	c := testCoordinator(t, Options{Resume: true})
	if err := c.store.Save(&checkpoint.Checkpoint{Table: "ratcatalogue", LastKey: []string{"IMG050"}}); err != nil {
		t.Fatal(err)
	}
	key, inclusive, err := c.startKey(tbl("ratcatalogue"))
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != 1 || key[0] != "IMG050" {
		t.Errorf("expected IMG050, got %v", key)
	}
	if inclusive {
		t.Error("checkpoint resume must exclude the committed key")
	}
}

func TestStartKeyIgnoresCheckpointWithoutResume(t *testing.T) {
	c := testCoordinator(t, Options{Resume: false})
	if err := c.store.Save(&checkpoint.Checkpoint{Table: "ratcatalogue", LastKey: []string{"IMG050"}}); err != nil {
		t.Fatal(err)
	}
	key, _, err := c.startKey(tbl("ratcatalogue"))
	if err != nil {
		t.Fatal(err)
	}
	if key != nil {
		t.Errorf("migration must start from the top, got %v", key)
	}
}

func TestStartKeyMissingCheckpoint(t *testing.T) {
	c := testCoordinator(t, Options{Resume: true})
	key, _, err := c.startKey(tbl("fresh"))
	if err != nil {
		t.Fatal(err)
	}
	if key != nil {
		t.Errorf("fresh table must start from the top, got %v", key)
	}
}

func TestFinalStatePaused(t *testing.T) {
	c := testCoordinator(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Summary{Tables: []*TableStatus{{Table: "a", State: StatePaused}}}
	if got := c.finalState(ctx, s); got != StatePaused {
		t.Errorf("expected PAUSED, got %s", got)
	}
}

func TestFinalStateCompletedWithPartialFailure(t *testing.T) {
	c := testCoordinator(t, Options{})
	s := &Summary{Tables: []*TableStatus{
		{Table: "a", State: StateCompleted},
		{Table: "b", State: StateFailed},
	}}
	if got := c.finalState(context.Background(), s); got != StateCompleted {
		t.Errorf("one failed table must not fail the run, got %s", got)
	}
	if len(s.Failed()) != 1 {
		t.Errorf("failure must still be recorded, got %d", len(s.Failed()))
	}
}

func TestFinalStateAllFailed(t *testing.T) {
	c := testCoordinator(t, Options{})
	s := &Summary{Tables: []*TableStatus{
		{Table: "a", State: StateFailed},
		{Table: "b", State: StateFailed},
	}}
	if got := c.finalState(context.Background(), s); got != StateFailed {
		t.Errorf("expected FAILED, got %s", got)
	}
}
