package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/okian/rankd/internal/domain/rating"
)

func scalar(id string, v float64) Record {
	return Record{ParticipantID: id, State: rating.Scalar{Value: v}}
}

func TestTreapStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(1))

	// Test empty store
	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	// Test inserting first entry
	if err := store.Put(ctx, scalar("alice", 1516)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	// Test rank query
	entry, err := store.Rank(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 {
		t.Errorf("expected rank 1, got %d", entry.Rank)
	}
	if entry.Display.Rating != 1516 {
		t.Errorf("expected rating 1516, got %f", entry.Display.Rating)
	}

	// Test Get
	rec, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.State != (rating.Scalar{Value: 1516}) {
		t.Errorf("unexpected state %#v", rec.State)
	}

	// Test TopN
	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Record.ParticipantID != "alice" {
		t.Errorf("unexpected top entries %#v", entries)
	}
}

func TestTreapStore_Replace(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(2))

	_ = store.Put(ctx, scalar("alice", 1500))
	_ = store.Put(ctx, scalar("bob", 1600))

	// Ratings can fall as well as rise.
	if err := store.Put(ctx, scalar("bob", 1400)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := store.Count(ctx); count != 2 {
		t.Errorf("expected count 2 after replace, got %d", count)
	}
	entry, err := store.Rank(ctx, "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 2 || entry.Display.Rating != 1400 {
		t.Errorf("expected bob at rank 2 with 1400, got %d with %f", entry.Rank, entry.Display.Rating)
	}
}

func TestTreapStore_Ordering(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(3))

	records := []Record{
		{ParticipantID: "elo", State: rating.Scalar{Value: 1484}},
		{ParticipantID: "glicko", State: rating.Triple{Rating: 1464.06, Deviation: 151.52, Volatility: 0.06}},
		{ParticipantID: "pair", State: rating.Pair{Rating: 1700, Deviation: 80}},
		{ParticipantID: "points", State: rating.Tally{Total: 24, History: []float64{1, 3, 2}}},
		{ParticipantID: "top", State: rating.Scalar{Value: 2400}},
	}
	for _, r := range records {
		if err := store.Put(ctx, r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"top", "pair", "elo", "glicko", "points"}
	for i, id := range want {
		if entries[i].Record.ParticipantID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, entries[i].Record.ParticipantID)
		}
		if entries[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, entries[i].Rank)
		}
	}
	if entries[1].Display.Deviation != 80 {
		t.Errorf("expected display deviation 80, got %f", entries[1].Display.Deviation)
	}
}

func TestTreapStore_TieBreaking(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(4))

	for _, id := range []string{"dave", "bob", "carol"} {
		_ = store.Put(ctx, scalar(id, 1500))
	}
	_ = store.Put(ctx, scalar("alice", 1600))
	_ = store.Put(ctx, scalar("erin", 1400))

	entries, err := store.TopN(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantIDs := []string{"alice", "bob", "carol", "dave", "erin"}
	wantRanks := []int{1, 2, 2, 2, 3}
	for i := range entries {
		if entries[i].Record.ParticipantID != wantIDs[i] || entries[i].Rank != wantRanks[i] {
			t.Errorf("position %d: expected %s@%d, got %s@%d",
				i, wantIDs[i], wantRanks[i], entries[i].Record.ParticipantID, entries[i].Rank)
		}
	}

	for i, id := range wantIDs {
		entry, err := store.Rank(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry.Rank != wantRanks[i] {
			t.Errorf("%s: expected rank %d, got %d", id, wantRanks[i], entry.Rank)
		}
	}
}

func TestTreapStore_EdgeCases(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()

	if _, err := store.Rank(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if err := store.Put(ctx, Record{ParticipantID: "x"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for nil state, got %v", err)
	}
	if err := store.Put(ctx, Record{State: rating.Scalar{}}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord for empty id, got %v", err)
	}

	entries, err := store.TopN(ctx, 3)
	if err != nil || len(entries) != 0 {
		t.Errorf("expected empty top list, got %v, %v", entries, err)
	}
}

func TestTreapStore_ExtremeValues(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(5))

	values := map[string]float64{
		"huge":     1e12,
		"inf":      math.Inf(1),
		"neg":      -1e12,
		"neg-inf":  math.Inf(-1),
		"nan":      math.NaN(),
		"tiny":     1e-12,
		"ordinary": 1500,
	}
	for id, v := range values {
		if err := store.Put(ctx, scalar(id, v)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := store.TopN(ctx, len(values))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entries[len(entries)-1].Record.ParticipantID != "neg-inf" {
		t.Errorf("expected neg-inf last, got %s", entries[len(entries)-1].Record.ParticipantID)
	}
	// inf and huge both saturate the fixed-point range and tie.
	if entries[0].Rank != 1 || entries[1].Rank != 1 {
		t.Errorf("expected saturated values to share rank 1, got %d and %d", entries[0].Rank, entries[1].Rank)
	}
}

func TestTreapStore_Range(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(6))
	for i := 0; i < 10; i++ {
		_ = store.Put(ctx, scalar(fmt.Sprintf("p%d", i), float64(1000+i)))
	}

	// fn may write back into the store.
	var seen []string
	store.Range(ctx, func(r Record) bool {
		seen = append(seen, r.ParticipantID)
		v := r.State.(rating.Scalar).Value
		_ = store.Put(ctx, scalar(r.ParticipantID, v+1))
		return true
	})
	if len(seen) != 10 || seen[0] != "p9" || seen[9] != "p0" {
		t.Errorf("expected rank order p9..p0, got %v", seen)
	}
	rec, _ := store.Get(ctx, "p0")
	if rec.State.(rating.Scalar).Value != 1001 {
		t.Errorf("expected write-back to apply, got %v", rec.State)
	}

	// Early stop.
	n := 0
	store.Range(ctx, func(Record) bool {
		n++
		return n < 3
	})
	if n != 3 {
		t.Errorf("expected range to stop after 3, got %d", n)
	}

	// Cancelled context stops before the first call.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	called := false
	store.Range(cctx, func(Record) bool {
		called = true
		return true
	})
	if called {
		t.Error("expected no calls with a cancelled context")
	}
}

func TestTreapStore_RankCorrectnessUnderChurn(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(7))
	rng := rand.New(rand.NewPCG(7, 7))

	want := make(map[string]float64)
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("p%d", rng.IntN(300))
		v := float64(rng.IntN(50)) // many ties
		want[id] = v
		if err := store.Put(ctx, scalar(id, v)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	distinct := make([]float64, 0)
	seenValue := make(map[float64]bool)
	for _, v := range want {
		if !seenValue[v] {
			seenValue[v] = true
			distinct = append(distinct, v)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))
	denseRank := make(map[float64]int, len(distinct))
	for i, v := range distinct {
		denseRank[v] = i + 1
	}

	if store.Count(ctx) != len(want) {
		t.Fatalf("expected %d participants, got %d", len(want), store.Count(ctx))
	}
	for id, v := range want {
		entry, err := store.Rank(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if entry.Rank != denseRank[v] {
			t.Errorf("%s (%v): expected rank %d, got %d", id, v, denseRank[v], entry.Rank)
		}
	}

	all, err := store.TopN(ctx, len(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if prev.Display.Rating < cur.Display.Rating {
			t.Fatalf("not descending at %d", i)
		}
		if prev.Display.Rating == cur.Display.Rating && prev.Record.ParticipantID > cur.Record.ParticipantID {
			t.Fatalf("ties not ordered by id at %d", i)
		}
	}
}

func TestTreapStore_RatingBands(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(11))

	for _, id := range []string{"a", "b", "c"} {
		_ = store.Put(ctx, scalar(id, 1500))
	}
	_ = store.Put(ctx, scalar("d", 1400))
	if got := nsize(store.bands); got != 2 {
		t.Fatalf("expected 2 bands, got %d", got)
	}

	// Moving everyone off 1500 drops the band; d climbs to rank 1.
	for _, id := range []string{"a", "b", "c"} {
		_ = store.Put(ctx, scalar(id, 1300))
	}
	if got := nsize(store.bands); got != 2 {
		t.Fatalf("expected 2 bands after moves, got %d", got)
	}
	if _, ok := store.bandSize[toFixedPoint(1500)]; ok {
		t.Fatal("empty band still counted")
	}
	if store.bandSize[toFixedPoint(1300)] != 3 {
		t.Fatalf("expected 3 participants at 1300, got %d", store.bandSize[toFixedPoint(1300)])
	}

	entry, err := store.Rank(ctx, "d")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 {
		t.Errorf("expected d at rank 1, got %d", entry.Rank)
	}
	entry, _ = store.Rank(ctx, "b")
	if entry.Rank != 2 {
		t.Errorf("expected b at rank 2, got %d", entry.Rank)
	}

	// Re-putting the same rating leaves the band count unchanged.
	_ = store.Put(ctx, scalar("d", 1400))
	if store.bandSize[toFixedPoint(1400)] != 1 || nsize(store.bands) != 2 {
		t.Errorf("same-rating put changed bands: size=%d bands=%d",
			store.bandSize[toFixedPoint(1400)], nsize(store.bands))
	}
}

func TestTreapStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := NewTreapStore()
	const numGoroutines = 10
	const numUpdates = 100

	var wg sync.WaitGroup
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				id := fmt.Sprintf("p%d_%d", g, j)
				if err := store.Put(ctx, scalar(id, float64(1000+j))); err != nil {
					t.Errorf("goroutine %d: unexpected error: %v", g, err)
				}
				_, _ = store.TopN(ctx, 5)
				_, _ = store.Rank(ctx, id)
			}
		}(g)
	}
	wg.Wait()

	if count := store.Count(ctx); count != numGoroutines*numUpdates {
		t.Errorf("expected count %d, got %d", numGoroutines*numUpdates, count)
	}
	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < len(entries)-1; i++ {
		if entries[i].Display.Rating < entries[i+1].Display.Rating {
			t.Errorf("entries not in descending order: %f < %f", entries[i].Display.Rating, entries[i+1].Display.Rating)
		}
	}
}

func BenchmarkTreapStore_Put(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(8))
	ids := make([]string, 100_000)
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Put(ctx, scalar(ids[i%len(ids)], float64(i%3000)))
	}
}

func BenchmarkTreapStore_MixedLoad(b *testing.B) {
	ctx := context.Background()
	store := NewTreapStore(WithSeed(9))
	const n = 100_000
	for i := 0; i < n; i++ {
		_ = store.Put(ctx, scalar(fmt.Sprintf("p%d", i), float64(i%3000)))
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := fmt.Sprintf("p%d", i%n)
			switch i % 10 {
			case 0, 1, 2, 3: // writes
				_ = store.Put(ctx, scalar(id, float64(i%3000)))
			case 4, 5, 6: // rank queries
				_, _ = store.Rank(ctx, id)
			default: // top lists
				_, _ = store.TopN(ctx, 10+i%100)
			}
			i++
		}
	})
}
