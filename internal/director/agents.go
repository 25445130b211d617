// ABOUTME: Thread-safe store of local agent lifecycle handles by id.
// ABOUTME: Lets unregistration drive Shutdown on the handle used at registration.

package director

import (
	"sync"

	"github.com/2389/agentic-director/internal/agent"
)

// localAgents tracks the Agent handles passed to RegisterAgent so that
// UnregisterAgent can drive their shutdown.
type localAgents struct {
	mu sync.Mutex
	m  map[string]agent.Agent
}

func newLocalAgents() *localAgents {
	return &localAgents{m: make(map[string]agent.Agent)}
}

func (l *localAgents) put(id string, a agent.Agent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m[id] = a
}

func (l *localAgents) drop(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.m, id)
}

func (l *localAgents) take(id string) (agent.Agent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.m[id]
	if ok {
		delete(l.m, id)
	}
	return a, ok
}
