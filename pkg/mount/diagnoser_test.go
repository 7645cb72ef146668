package mount

import (
	"strings"
	"sync"
	"testing"

	"github.com/beam-cloud/bucketmount/pkg/process"
	"github.com/stretchr/testify/assert"
)

func TestDiagnoser_KeepsArrivalOrder(t *testing.T) {
	d := NewDiagnoser(1024)
	d.Observe(process.Stdout, []byte("starting\n"))
	d.Observe(process.Stderr, []byte("ERROR: bucket missing\n"))
	d.Observe(process.Stdout, []byte("exiting\n"))

	assert.Equal(t, "starting\nERROR: bucket missing\nexiting\n", d.String())
	assert.Equal(t, int64(0), d.Dropped())
}

func TestDiagnoser_KeepsNewestBytes(t *testing.T) {
	d := NewDiagnoser(10)

	n, err := d.Write([]byte("0123456789abcdef"))
	assert.NoError(t, err)
	assert.Equal(t, 16, n)

	assert.Equal(t, "6789abcdef", d.String())
	assert.Equal(t, 10, d.Len())
	assert.Equal(t, int64(6), d.Dropped())

	d.Write([]byte("XY"))
	assert.Equal(t, "89abcdefXY", d.String())
	assert.Equal(t, int64(8), d.Dropped())
}

func TestDiagnoser_DefaultLimit(t *testing.T) {
	d := NewDiagnoser(0)
	d.Write([]byte(strings.Repeat("x", DefaultOutputLimit+5)))

	assert.Equal(t, DefaultOutputLimit, d.Len())
	assert.Equal(t, int64(5), d.Dropped())
}

func TestDiagnoser_ConcurrentWriters(t *testing.T) {
	d := NewDiagnoser(1 << 20)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Observe(process.Stderr, []byte("line\n"))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*100*5, d.Len())
}

func TestDiagnoser_Render(t *testing.T) {
	tests := []struct {
		name   string
		output string
		limit  int
		status process.ExitStatus
		want   string
	}{
		{
			name:   "no output",
			limit:  1024,
			status: process.ExitStatus{Code: 1},
			want:   "exit code: 1\nno output captured",
		},
		{
			name:   "whitespace only",
			output: "\n  \n",
			limit:  1024,
			status: process.ExitStatus{Code: 2},
			want:   "exit code: 2\nno output captured",
		},
		{
			name:   "trimmed output",
			output: "\nFailed to mount FUSE fs: fusermount: exit status 1\n",
			limit:  1024,
			status: process.ExitStatus{Code: 1},
			want:   "exit code: 1\nFailed to mount FUSE fs: fusermount: exit status 1",
		},
		{
			name:   "signal",
			output: "killed",
			limit:  1024,
			status: process.ExitStatus{Code: -1, Signal: "killed"},
			want:   "exit code: -1 (signal: killed)\nkilled",
		},
		{
			name:   "truncated",
			output: "aaaaabbbbb",
			limit:  5,
			status: process.ExitStatus{Code: 1},
			want:   "exit code: 1\n[5 earlier bytes dropped]\nbbbbb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDiagnoser(tt.limit)
			d.Write([]byte(tt.output))
			assert.Equal(t, tt.want, d.Render(tt.status))
		})
	}
}
