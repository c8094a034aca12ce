package runnable

import (
	"fmt"
	"runtime"
	"testing"
	"time"
	"webshot/internal/capture"

	"github.com/google/go-cmp/cmp"
)

func TestTerminationGracePeriod(t *testing.T) {
	config := func(deadline time.Duration, teardown time.Duration) capture.Config {
		c := capture.DefaultConfig()
		c.Deadline = deadline
		c.TeardownTimeout = teardown
		return c
	}

	tests := []struct {
		name   string
		config capture.Config
		want   time.Duration
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			capture.DefaultConfig(),
			101 * time.Second,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			config(2*time.Second, time.Second),
			10 * time.Second,
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			config(0, 0),
			10 * time.Second,
		},
	}

	for _, tt := range tests {
		name := tt.name
		config := tt.config
		want := tt.want
		t.Run(name, func(t *testing.T) {
			got := terminationGracePeriod(config)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if got < config.Deadline+config.TeardownTimeout {
				t.Errorf("grace period %s is shorter than deadline %s plus teardown %s", got, config.Deadline, config.TeardownTimeout)
			}
		})
	}
}

func TestNewServerGracePeriod(t *testing.T) {
	config := capture.DefaultConfig()

	if diff := cmp.Diff(terminationGracePeriod(config), NewServer(nil, config).terminationGracePeriod); diff != "" {
		t.Errorf("default (-want +got):\n%s", diff)
	}

	t.Setenv("TERMINATION_GRACE_PERIOD", "3m")
	if diff := cmp.Diff(3*time.Minute, NewServer(nil, config).terminationGracePeriod); diff != "" {
		t.Errorf("explicit (-want +got):\n%s", diff)
	}
}
