package infra

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// mockProcessManager is a test double for ProcessManager.
// Processes are keyed by PID with a name.
type mockProcessManager struct {
	mu         sync.Mutex
	processes  map[int]string
	killedPIDs []int
	listErr    error
	killErr    error
}

func newMockProcessManager() *mockProcessManager {
	return &mockProcessManager{
		processes: make(map[int]string),
	}
}

func (m *mockProcessManager) ListNames() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	seen := make(map[string]bool)
	var names []string
	for _, name := range m.processes {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}

func (m *mockProcessManager) FindByName(pattern string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pids []int
	for pid, name := range m.processes {
		if strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

func (m *mockProcessManager) Kill(pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.killErr != nil {
		return m.killErr
	}
	if _, ok := m.processes[pid]; !ok {
		return fmt.Errorf("process %d not found", pid)
	}
	m.killedPIDs = append(m.killedPIDs, pid)
	delete(m.processes, pid)
	return nil
}

func (m *mockProcessManager) IsRunning(pid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processes[pid]
	return ok
}

func (m *mockProcessManager) GetCurrentPID() int {
	return os.Getpid()
}

func (m *mockProcessManager) Start(pid int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processes[pid] = name
}

func (m *mockProcessManager) Stop(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processes, pid)
}

func (m *mockProcessManager) Killed() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.killedPIDs...)
}
