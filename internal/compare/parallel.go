package compare

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// WorkItem is one pair of call sets queued for comparison.
type WorkItem struct {
	Seq int
	Ref CallSet
	Cmp CallSet
}

// WorkResult carries the scored comparison for one pair.
type WorkResult struct {
	Seq        int
	Comparison *Comparison
}

// ParallelCompare scores work items using a pool of workers.
// Results are sent to the returned channel in arrival order (not sequence
// order). Use OrderedCollect to consume results in sequence-number order.
// If workers is 0, runtime.NumCPU() is used.
func (o *Orchestrator) ParallelCompare(items <-chan WorkItem) <-chan WorkResult {
	workers := o.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make(chan WorkResult, 2*workers)

	var wg sync.WaitGroup
	wg.Add(workers)

	for range workers {
		go func() {
			defer wg.Done()
			for item := range items {
				results <- WorkResult{
					Seq:        item.Seq,
					Comparison: o.comparePair(item),
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// comparePair shields the pool from a panic while scoring one pair, so a
// single malformed pair cannot take down a whole batch.
func (o *Orchestrator) comparePair(item WorkItem) (c *Comparison) {
	defer func() {
		if p := recover(); p != nil {
			c = &Comparison{
				Ref: item.Ref.Name,
				Cmp: item.Cmp.Name,
				Err: fmt.Errorf("comparing %s against %s: %v", item.Cmp.Name, item.Ref.Name, p),
			}
		}
	}()
	return o.Compare(item.Ref, item.Cmp)
}

// OrderedCollect calls fn for each result in sequence-number order.
// It buffers out-of-order results in a pending map and emits them
// as soon as the next expected sequence number is available.
// Blocks until the results channel is closed.
func OrderedCollect(results <-chan WorkResult, fn func(WorkResult) error) error {
	pending := make(map[int]WorkResult)
	nextSeq := 0

	for r := range results {
		pending[r.Seq] = r

		for {
			rr, ok := pending[nextSeq]
			if !ok {
				break
			}
			delete(pending, nextSeq)
			nextSeq++
			if err := fn(rr); err != nil {
				// Drain remaining results to unblock workers.
				for range results {
				}
				return err
			}
		}
	}

	return nil
}

// RunBatch compares every pair of call sets and returns one Comparison per
// pair in deterministic pair order. A panic while scoring one pair is
// recorded on its entry and the rest of the batch proceeds.
func (o *Orchestrator) RunBatch(sets []CallSet) []*Comparison {
	var pairs []WorkItem
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			pairs = append(pairs, WorkItem{Seq: len(pairs), Ref: sets[i], Cmp: sets[j]})
		}
	}
	if len(pairs) == 0 {
		return nil
	}

	items := make(chan WorkItem, len(pairs))
	for _, p := range pairs {
		items <- p
	}
	close(items)

	out := make([]*Comparison, 0, len(pairs))
	_ = OrderedCollect(o.ParallelCompare(items), func(r WorkResult) error {
		if r.Comparison.Err != nil {
			o.logger.Warn("comparison failed",
				zap.String("ref", r.Comparison.Ref),
				zap.String("cmp", r.Comparison.Cmp),
				zap.Error(r.Comparison.Err))
		}
		out = append(out, r.Comparison)
		return nil
	})
	return out
}
