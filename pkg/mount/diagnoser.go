package mount

import (
	"fmt"
	"strings"
	"sync"

	"github.com/armon/circbuf"
	"github.com/beam-cloud/bucketmount/pkg/process"
)

// DefaultOutputLimit is the number of combined output bytes kept per mount attempt.
const DefaultOutputLimit = 64 << 10

// Diagnoser accumulates the combined stdout/stderr of a mount process in
// arrival order. Once the limit is reached the oldest bytes are discarded.
type Diagnoser struct {
	mu  sync.Mutex
	buf *circbuf.Buffer
}

func NewDiagnoser(limit int) *Diagnoser {
	if limit <= 0 {
		limit = DefaultOutputLimit
	}
	buf, _ := circbuf.NewBuffer(int64(limit))
	return &Diagnoser{buf: buf}
}

// Observe is a process.OutputFunc.
func (d *Diagnoser) Observe(_ process.Stream, chunk []byte) {
	d.Write(chunk)
}

func (d *Diagnoser) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

func (d *Diagnoser) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.buf.Bytes())
}

func (d *Diagnoser) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf.Bytes())
}

// Dropped returns how many bytes were discarded to stay under the limit.
func (d *Diagnoser) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if over := d.buf.TotalWritten() - d.buf.Size(); over > 0 {
		return over
	}
	return 0
}

// Render produces the failure summary for an abnormal exit.
func (d *Diagnoser) Render(status process.ExitStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "exit code: %d", status.Code)
	if status.Signal != "" {
		fmt.Fprintf(&b, " (signal: %s)", status.Signal)
	}
	b.WriteByte('\n')

	output := strings.TrimSpace(d.String())
	switch {
	case output == "":
		b.WriteString("no output captured")
	case d.Dropped() > 0:
		fmt.Fprintf(&b, "[%d earlier bytes dropped]\n%s", d.Dropped(), output)
	default:
		b.WriteString(output)
	}
	return b.String()
}
