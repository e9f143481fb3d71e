package registry

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var idCounter uint64

// GenerateID returns a session id that is unique with overwhelming
// probability: a millisecond timestamp for ordering, a per-process monotonic
// counter that removes same-millisecond collisions outright, and a short
// random suffix that separates concurrent processes.
func GenerateID() string {
	millis := time.Now().UnixMilli()
	count := atomic.AddUint64(&idCounter, 1) % 10000
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d-%04d-%s", millis, count, suffix)
}
