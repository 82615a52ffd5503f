package queue

import (
	"fmt"

	"vodingest/internal/services"
)

// ErrLeaseLost reports that a lease token is no longer current: it expired and
// was handed to another worker, or the entry was already acked.
var ErrLeaseLost = fmt.Errorf("%w: queue: lease lost", services.ErrConflict)
