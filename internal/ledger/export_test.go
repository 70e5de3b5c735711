package ledger

import (
	"testing"
	"time"
)

// SetClock swaps the service clock for deterministic expiry tests.
func SetClock(t *testing.T, s Service, clock func() time.Time) {
	t.Helper()
	impl, ok := s.(*service)
	if !ok {
		t.Fatalf("unexpected service implementation %T", s)
	}
	impl.now = clock
}
