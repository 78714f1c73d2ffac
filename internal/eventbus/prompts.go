package eventbus

import "sync"

type promptWaiter struct {
	batchID string
	ch      chan string
}

// promptRegistry tracks outstanding interactive prompts, keyed by prompt
// id, so deliver_user_response can resolve one from any caller (Phase 1
// suspend/resume). It does not limit how many are outstanding.
type promptRegistry struct {
	mu      sync.Mutex
	waiters map[string]promptWaiter
}

func newPromptRegistry() *promptRegistry {
	return &promptRegistry{waiters: make(map[string]promptWaiter)}
}

func (r *promptRegistry) register(batchID, promptID string) <-chan string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan string, 1)
	r.waiters[promptID] = promptWaiter{batchID: batchID, ch: ch}
	return ch
}

func (r *promptRegistry) deliver(promptID, response string) (batchID string, ok bool) {
	r.mu.Lock()
	w, found := r.waiters[promptID]
	if found {
		delete(r.waiters, promptID)
	}
	r.mu.Unlock()
	if !found {
		return "", false
	}
	w.ch <- response
	close(w.ch)
	return w.batchID, true
}

func (r *promptRegistry) cancel(promptID string) {
	r.mu.Lock()
	w, found := r.waiters[promptID]
	if found {
		delete(r.waiters, promptID)
	}
	r.mu.Unlock()
	if found {
		close(w.ch)
	}
}
