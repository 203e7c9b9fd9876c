package sentinel

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"pgregory.net/rapid"
)

func TestRingOrderAcrossWraparound(t *testing.T) {
	var r observationRing
	for i := 0; i < 75; i++ {
		r.append(Observation{Price: sdkmath.NewInt(int64(1000 + i)), Timestamp: uint64(i)})
	}

	if r.size() != Capacity {
		t.Fatalf("size after wraparound = %d, want %d", r.size(), Capacity)
	}

	oldest, err := r.get(0)
	if err != nil {
		t.Fatalf("get(0): %v", err)
	}
	if oldest.Timestamp != 15 {
		t.Fatalf("oldest timestamp = %d, want 15", oldest.Timestamp)
	}

	newest, err := r.get(Capacity - 1)
	if err != nil {
		t.Fatalf("get(%d): %v", Capacity-1, err)
	}
	if newest.Timestamp != 74 {
		t.Fatalf("newest timestamp = %d, want 74", newest.Timestamp)
	}

	prev := oldest.Timestamp
	for i := 1; i < r.size(); i++ {
		obs, err := r.get(i)
		if err != nil {
			t.Fatalf("get(%d): %v", i, err)
		}
		if obs.Timestamp <= prev {
			t.Fatalf("insertion order broken at %d: %d after %d", i, obs.Timestamp, prev)
		}
		prev = obs.Timestamp
	}
}

func TestRingGetOutOfRange(t *testing.T) {
	var r observationRing

	if _, err := r.get(0); err == nil {
		t.Fatal("get on empty ring should fail")
	}

	r.append(Observation{Price: sdkmath.NewInt(1), Timestamp: 1})

	_, err := r.get(1)
	oor, ok := err.(*IndexOutOfRangeError)
	if !ok {
		t.Fatalf("expected IndexOutOfRangeError, got %v", err)
	}
	if oor.Index != 1 || oor.Count != 1 {
		t.Fatalf("unexpected error payload: %+v", oor)
	}

	if _, err := r.get(-1); err == nil {
		t.Fatal("negative index should fail")
	}
}

func TestRingProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 200).Draw(t, "appends")

		var r observationRing
		sawFull := false
		for i := 0; i < n; i++ {
			r.append(Observation{Price: sdkmath.NewInt(int64(i)), Timestamp: uint64(i)})

			if r.size() > Capacity {
				t.Fatalf("count %d exceeds capacity", r.size())
			}
			if sawFull && r.size() != Capacity {
				t.Fatalf("count decreased after reaching capacity: %d", r.size())
			}
			if r.size() == Capacity {
				sawFull = true
			}
		}

		want := n
		if want > Capacity {
			want = Capacity
		}
		if r.size() != want {
			t.Fatalf("count = %d, want %d", r.size(), want)
		}

		// The ring must hold exactly the last `want` appends, in order.
		first := n - want
		for i := 0; i < want; i++ {
			obs, err := r.get(i)
			if err != nil {
				t.Fatalf("get(%d): %v", i, err)
			}
			if obs.Timestamp != uint64(first+i) {
				t.Fatalf("logical index %d holds timestamp %d, want %d", i, obs.Timestamp, first+i)
			}
		}
	})
}
