package types

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrail_RecordsInOrder(t *testing.T) {
	trail := NewTrail()
	trail.Record("first", nil)
	trail.Record("second", map[string]interface{}{"n": 2})
	trail.Record("third", nil)

	assert.Equal(t, []string{"first", "second", "third"}, trail.Names())
	assert.Equal(t, 3, trail.Len())

	cps := trail.Checkpoints()
	assert.Equal(t, 2, cps[1].Detail["n"])
	assert.False(t, cps[0].At.IsZero())
}

func TestTrail_CopiesDetail(t *testing.T) {
	trail := NewTrail()
	detail := map[string]interface{}{"field": "analysis"}
	trail.Record("field", detail)

	detail["field"] = "mutated"
	assert.Equal(t, "analysis", trail.Checkpoints()[0].Detail["field"])
}

func TestTrail_CheckpointsIsSnapshot(t *testing.T) {
	trail := NewTrail()
	trail.Record("a", nil)
	snapshot := trail.Checkpoints()
	trail.Record("b", nil)

	assert.Len(t, snapshot, 1)
	assert.Equal(t, 2, trail.Len())
}

func TestTrail_ConcurrentRecord(t *testing.T) {
	trail := NewTrail()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trail.Record("tick", nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, trail.Len())
}

func TestCheckpoint_String(t *testing.T) {
	assert.Equal(t, "construction_started", Checkpoint{Name: "construction_started"}.String())

	cp := Checkpoint{
		Name: "field",
		Detail: map[string]interface{}{
			"present": true,
			"field":   "chartImage",
		},
	}
	assert.Equal(t, "field (field=chartImage, present=true)", cp.String())
}
