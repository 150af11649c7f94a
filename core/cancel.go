/*
This file implements the CancelManager, which tracks in-flight chat turns so
they can be stopped on request.

Each streaming turn registers its context cancellation function under a
unique execution id; the /stop endpoint resolves that id and cancels the
context, which unwinds the model call and tool dispatch promptly. Client
disconnects cancel through the request context without involving the manager.
*/
package core

import (
	"context"
	"sync"
)

// CancelManager is a thread-safe registry of execution id to cancellation
// function for running turns.
type CancelManager struct {
	executions map[string]context.CancelFunc
	mutex      sync.RWMutex
}

// NewCancelManager creates an empty cancel manager.
func NewCancelManager() *CancelManager {
	return &CancelManager{
		executions: make(map[string]context.CancelFunc),
	}
}

// AddExecution registers a new turn with its cancellation function.
func (cm *CancelManager) AddExecution(executionID string, cancel context.CancelFunc) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.executions[executionID] = cancel
}

// RemoveExecution drops a completed or cancelled turn from tracking.
func (cm *CancelManager) RemoveExecution(executionID string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	delete(cm.executions, executionID)
}

// CancelExecution cancels a running turn by id. Returns false when no such
// turn is tracked (already finished, or never existed).
func (cm *CancelManager) CancelExecution(executionID string) bool {
	cm.mutex.RLock()
	cancel, exists := cm.executions[executionID]
	cm.mutex.RUnlock()

	if exists {
		cancel()
		cm.RemoveExecution(executionID)
		return true
	}
	return false
}

// GetActiveExecutions lists the ids of all currently running turns.
func (cm *CancelManager) GetActiveExecutions() []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	executions := make([]string, 0, len(cm.executions))
	for id := range cm.executions {
		executions = append(executions, id)
	}
	return executions
}
