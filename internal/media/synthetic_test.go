package media

import "testing"

func TestSyntheticAcquire(t *testing.T) {
	tests := []struct {
		name        string
		constraints Constraints
		wantTracks  int
	}{
		{"video and audio", Constraints{Video: true, Audio: true}, 2},
		{"video only", Constraints{Video: true}, 1},
		{"audio only", Constraints{Audio: true}, 1},
		{"receive only", Constraints{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acq, err := NewSynthetic().Acquire(tt.constraints)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			defer acq.Close()

			if acq.API == nil {
				t.Fatal("Acquisition without API")
			}
			if len(acq.Tracks) != tt.wantTracks {
				t.Errorf("tracks = %d, want %d", len(acq.Tracks), tt.wantTracks)
			}
		})
	}
}

func TestAcquisitionCloseIsIdempotent(t *testing.T) {
	calls := 0
	acq := &Acquisition{closeFn: func() { calls++ }}
	acq.Close()
	acq.Close()
	if calls != 1 {
		t.Errorf("closeFn called %d times, want 1", calls)
	}
}
