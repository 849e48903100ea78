package observability

import (
	"sync"
	"time"
)

type Role string

const (
	RoleIdle   Role = "IDLE"
	RoleAgent  Role = "AGENT"
	RoleVerify Role = "VERIFY"
	RoleReplay Role = "REPLAY"
)

type SystemStatus struct {
	mu          sync.RWMutex
	CurrentRole Role
	ActiveStep  string
	LastChange  time.Time
	Passed      int
	Failed      int
}

var globalStatus = &SystemStatus{
	CurrentRole: RoleIdle,
	LastChange:  time.Now(),
}

// SetStatus updates the global status with the step currently executing.
func SetStatus(role Role, step string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.CurrentRole = role
	globalStatus.ActiveStep = step
	globalStatus.LastChange = time.Now()
}

// RecordResult counts a finished scenario run.
func RecordResult(passed bool) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if passed {
		globalStatus.Passed++
	} else {
		globalStatus.Failed++
	}
}

// GetStatus retrieves a copy of the global status.
func GetStatus() (Role, string, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveStep, globalStatus.LastChange
}

// GetResults returns how many scenario runs passed and failed.
func GetResults() (passed, failed int) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.Passed, globalStatus.Failed
}
