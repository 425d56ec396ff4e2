package vault

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/audiokeeper/internal/models"
)

// ProgressFunc receives the events of one download in order. It is called
// synchronously, must not block and must not call back into the Vault.
type ProgressFunc func(models.Progress)

// operation is one running download. Callers for the same item, owner and
// source attach to it instead of starting another transfer.
type operation struct {
	itemID    string
	ownerID   string
	remoteURL string

	cancel context.CancelFunc
	done   chan struct{}
	handle string
	err    error

	mu        sync.Mutex
	last      *models.Progress
	subs      map[int]ProgressFunc
	nextSub   int
	waiters   int
	abandoned bool // cancelled or left by every waiter; accepts no new waiters
}

func newOperation(req Request, cancel context.CancelFunc) *operation {
	return &operation{
		itemID:    req.ItemID,
		ownerID:   req.OwnerID,
		remoteURL: req.RemoteURL,
		cancel:    cancel,
		done:      make(chan struct{}),
		subs:      make(map[int]ProgressFunc),
	}
}

// join registers a waiter and its progress callback; the latest event, if
// any, is replayed to fn first. It fails once the operation is abandoned.
func (op *operation) join(fn ProgressFunc) (int, bool) {
	op.mu.Lock()
	defer op.mu.Unlock()

	if op.abandoned {
		return 0, false
	}
	op.waiters++
	id := op.nextSub
	op.nextSub++
	if fn != nil {
		if op.last != nil {
			fn(*op.last)
		}
		op.subs[id] = fn
	}
	return id, true
}

// leave unregisters a waiter and reports whether it was the last one, in
// which case the operation is abandoned.
func (op *operation) leave(id int) bool {
	op.mu.Lock()
	defer op.mu.Unlock()

	delete(op.subs, id)
	op.waiters--
	if op.waiters == 0 {
		op.abandoned = true
	}
	return op.waiters == 0
}

// abandon stops the transfer and turns away later callers.
func (op *operation) abandon() {
	op.mu.Lock()
	op.abandoned = true
	op.mu.Unlock()
	op.cancel()
}

func (op *operation) emit(p models.Progress) {
	op.mu.Lock()
	defer op.mu.Unlock()

	op.last = &p
	for _, fn := range op.subs {
		fn(p)
	}
}

// wait blocks until the operation finishes or ctx is done. The last waiter
// to give up cancels the transfer.
func (op *operation) wait(ctx context.Context, sub int) (string, error) {
	select {
	case <-op.done:
		return op.handle, op.err
	case <-ctx.Done():
		if op.leave(sub) {
			op.cancel()
		}
		return "", ctx.Err()
	}
}
