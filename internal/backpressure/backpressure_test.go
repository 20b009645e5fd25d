package backpressure

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func fixedUsage(total, usable uint64) UsageFunc {
	return func(string) (uint64, uint64, error) { return total, usable, nil }
}

func TestUsedPercent(t *testing.T) {
	tests := []struct {
		total, usable uint64
		want          int
	}{
		{100, 100, 0},
		{100, 0, 100},
		{100, 2, 98},
		{1000, 25, 98}, // 2.5% usable truncates to 2
		{1000, 19, 99},
		{3, 1, 67},
	}
	for _, tt := range tests {
		if got := UsedPercent(tt.total, tt.usable); got != tt.want {
			t.Errorf("UsedPercent(%d, %d) = %d, want %d", tt.total, tt.usable, got, tt.want)
		}
	}
}

func TestDiskGate(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		usable    uint64
		drop      bool
	}{
		{"below threshold", 98, 10, false},
		{"at threshold", 98, 2, true},
		{"above threshold", 90, 5, true},
		{"threshold 100 with room", 100, 1, false},
		{"threshold 100 full", 100, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &DiskGate{Path: "/var/queue", Threshold: tt.threshold, Usage: fixedUsage(100, tt.usable)}
			err := g.Admit(10)
			if (err != nil) != tt.drop {
				t.Fatalf("Admit() = %v, drop %v", err, tt.drop)
			}
			if err == nil {
				return
			}
			var de *DropError
			if !errors.As(err, &de) {
				t.Fatalf("error %T is not *DropError", err)
			}
			if de.Path != "/var/queue" || de.Threshold != tt.threshold || de.UsedPercent != 100-int(tt.usable) {
				t.Errorf("unexpected DropError %+v", de)
			}
		})
	}
}

func TestDiskGateMessage(t *testing.T) {
	g := &DiskGate{Path: "/data", Threshold: 98, Usage: fixedUsage(100, 1)}
	err := g.Admit(1)
	want := "Dropping logs, as FS used space on /data is 99 percent, and the drop threshold is 98 percent"
	if err == nil || err.Error() != want {
		t.Errorf("message = %v, want %q", err, want)
	}
}

func TestDiskGateMeasurementFailureAdmits(t *testing.T) {
	g := &DiskGate{Path: "/x", Threshold: 1, Usage: func(string) (uint64, uint64, error) {
		return 0, 0, errors.New("statfs failed")
	}}
	if err := g.Admit(1); err != nil {
		t.Errorf("Admit() = %v, want nil when usage is unknown", err)
	}
}

func TestDiskGateCountsRejections(t *testing.T) {
	before := testutil.ToFloat64(diskGateRejectedTotal)
	g := &DiskGate{Path: "/x", Threshold: 50, Usage: fixedUsage(100, 10)}
	_ = g.Admit(1)
	_ = g.Admit(1)
	if got := testutil.ToFloat64(diskGateRejectedTotal) - before; got != 2 {
		t.Errorf("rejections counted = %v, want 2", got)
	}
}

func TestNewDiskGateDisabled(t *testing.T) {
	if _, ok := NewDiskGate(t.TempDir(), Disabled).(Nop); !ok {
		t.Error("threshold -1 should yield Nop")
	}
	if _, ok := NewDiskGate(t.TempDir(), 98).(*DiskGate); !ok {
		t.Error("threshold 98 should yield *DiskGate")
	}
}

func TestStatfsOnTempDir(t *testing.T) {
	total, usable, err := Statfs(t.TempDir())
	if err != nil {
		t.Fatalf("Statfs: %v", err)
	}
	if total == 0 || usable > total {
		t.Errorf("implausible usage total=%d usable=%d", total, usable)
	}
}

func TestValidateThreshold(t *testing.T) {
	for _, ok := range []int{-1, 1, 50, 98, 100} {
		if err := ValidateThreshold(ok); err != nil {
			t.Errorf("ValidateThreshold(%d) = %v", ok, err)
		}
	}
	for _, bad := range []int{-2, 0, 101} {
		if err := ValidateThreshold(bad); err == nil {
			t.Errorf("ValidateThreshold(%d) should fail", bad)
		}
	}
}

type fakeCapacity struct{ fits bool }

func (f fakeCapacity) Fits(int) bool { return f.fits }

func TestCapacityGate(t *testing.T) {
	g := &CapacityGate{Queue: fakeCapacity{fits: true}, MaxBytes: 100, MaxEntries: 5}
	if err := g.Admit(10); err != nil {
		t.Fatalf("Admit() = %v", err)
	}

	g.Queue = fakeCapacity{fits: false}
	err := g.Admit(10)
	var de *DropError
	if !errors.As(err, &de) || de.Reason != ReasonCapacity {
		t.Fatalf("Admit() = %v, want capacity DropError", err)
	}
	if !strings.Contains(err.Error(), "max bytes 100") {
		t.Errorf("message = %q", err.Error())
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Admit(1 << 30); err != nil {
		t.Errorf("Nop.Admit() = %v", err)
	}
}
