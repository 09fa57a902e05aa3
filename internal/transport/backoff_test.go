package transport

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	ms := time.Millisecond
	tests := []struct {
		name string
		b    Backoff
		want []time.Duration
	}{
		{
			name: "default schedule",
			b:    DefaultBackoff(),
			want: []time.Duration{250 * ms, 500 * ms, 1000 * ms, 2000 * ms, 4000 * ms, 4000 * ms, 4000 * ms},
		},
		{
			name: "doublings stop before max",
			b:    Backoff{Initial: 100 * ms, Max: 10 * time.Second, Doublings: 2},
			want: []time.Duration{100 * ms, 200 * ms, 400 * ms, 400 * ms},
		},
		{
			name: "no doublings",
			b:    Backoff{Initial: 100 * ms, Max: time.Second},
			want: []time.Duration{100 * ms, 100 * ms},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for pass, want := range tt.want {
				if got := tt.b.Delay(pass); got != want {
					t.Errorf("Delay(%d) = %v, want %v", pass, got, want)
				}
			}
		})
	}
}

func TestBackoffNormalize(t *testing.T) {
	b := Backoff{}.normalize()
	if b != DefaultBackoff() {
		t.Errorf("zero Backoff normalized to %+v, want defaults", b)
	}

	b = Backoff{Initial: time.Second, Max: time.Millisecond, Doublings: -1}.normalize()
	if b.Max != time.Second || b.Doublings != 0 {
		t.Errorf("unexpected normalization: %+v", b)
	}
}
