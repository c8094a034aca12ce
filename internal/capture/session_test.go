package capture

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFullPageClip(t *testing.T) {
	type in struct {
		documentHeight    int
		deviceScaleFactor float64
		maxHeight         int
	}

	type want struct {
		height int
		ok     bool
	}

	tests := []struct {
		name string
		in   in
		want want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{3000, 1, 20000},
			want{0, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{30000, 1, 20000},
			want{20000, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{15000, 2, 20000},
			want{10000, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{10000, 2, 20000},
			want{0, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{30000, 0.5, 20000},
			want{0, false},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{50000, 0.5, 20000},
			want{40000, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{50000, 1.5, 20000},
			want{13333, true},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			in{50000, 1, 0},
			want{0, false},
		},
	}

	for _, tt := range tests {
		name := tt.name
		in := tt.in
		expected := tt.want
		t.Run(name, func(t *testing.T) {
			height, ok := fullPageClip(in.documentHeight, in.deviceScaleFactor, in.maxHeight)
			if diff := cmp.Diff(expected, want{height, ok}, cmp.AllowUnexported(want{})); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}
