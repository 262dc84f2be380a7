package crm

import "sync"

// SyncContext holds the error state for one consumer of the sync layer. It
// replaces ambient per-session state: callers construct one and pass it by
// reference, and only read it from the coordinating goroutine.
type SyncContext struct {
	mu         sync.Mutex
	lastErr    *APIError
	partialErr string
}

// NewSyncContext returns an empty sync context.
func NewSyncContext() *SyncContext {
	return &SyncContext{}
}

// RecordError stores err as the last error when it is an *APIError.
func (c *SyncContext) RecordError(err error) {
	apiErr, ok := AsAPIError(err)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = apiErr
}

// ClearError drops the last recorded error. Called on any 2xx response.
func (c *SyncContext) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
}

// LastError returns the most recent API error, or nil.
func (c *SyncContext) LastError() *APIError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetPartial records a soft warning: some data loaded, some did not.
func (c *SyncContext) SetPartial(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partialErr = message
}

// ClearPartial drops the partial warning.
func (c *SyncContext) ClearPartial() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partialErr = ""
}

// Partial returns the current partial warning, or "".
func (c *SyncContext) Partial() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partialErr
}
