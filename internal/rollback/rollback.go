// Package rollback undoes a mutation by case ID: restore the backup
// content the mutation recorded, keeping the owner and permissions the
// file has on disk at rollback time (a case records neither), then verify
// the restored file hashes back to the pre-mutation state. It never
// retries or guesses a case ID — an unknown ID is a terminal error, not
// something to fuzzy-match.
package rollback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/annassistant/anna/internal/mutation"
	"github.com/annassistant/anna/pkg/types"
)

// Result is the outcome of one rollback attempt.
type Result struct {
	CaseID  string `json:"case_id"`
	Path    string `json:"path"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Log is the on-disk record of mutation cases, kept as one JSON array so
// a rollback never has to scan the live filesystem to find what it's
// undoing. Record appends a case, a rollback rewrites its case's entry in
// place, and Find scans the array newest first. It is safe for concurrent
// use.
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog opens (without yet reading) the log file at path.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Record appends a completed mutation case to the log.
func (l *Log) Record(c types.MutationCase) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cases, err := l.readAll()
	if err != nil {
		return err
	}
	cases = append(cases, c)
	return l.writeAll(cases)
}

// Find looks up a case by ID.
func (l *Log) Find(caseID string) (types.MutationCase, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cases, err := l.readAll()
	if err != nil {
		return types.MutationCase{}, false, err
	}
	for i := len(cases) - 1; i >= 0; i-- {
		if cases[i].CaseID == caseID {
			return cases[i], true, nil
		}
	}
	return types.MutationCase{}, false, nil
}

// markRolledBack updates a case's record in place after a successful
// rollback, so a second rollback attempt against the same case ID is
// rejected rather than silently re-applied.
func (l *Log) markRolledBack(caseID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cases, err := l.readAll()
	if err != nil {
		return err
	}
	for i := range cases {
		if cases[i].CaseID == caseID {
			cases[i].Error = "rolled back"
		}
	}
	return l.writeAll(cases)
}

func (l *Log) readAll() ([]types.MutationCase, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mutation log %s: %w", l.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var cases []types.MutationCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("parse mutation log %s: %w", l.path, err)
	}
	return cases, nil
}

func (l *Log) writeAll(cases []types.MutationCase) error {
	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mutation log: %w", err)
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create mutation log dir %s: %w", dir, err)
		}
	}
	return os.WriteFile(l.path, data, 0o600)
}

// Execute finds case caseID and restores its backup onto disk, verifying
// the restored content hashes back to the case's recorded pre-mutation
// hash before declaring success.
func Execute(log *Log, caseID string) Result {
	result := Result{CaseID: caseID}

	c, found, err := log.Find(caseID)
	if err != nil {
		result.Error = fmt.Sprintf("read mutation log: %s", err)
		return result
	}
	if !found {
		result.Error = fmt.Sprintf("no mutation case %q found", caseID)
		return result
	}
	result.Path = c.Path

	if c.Error == "rolled back" {
		result.Error = fmt.Sprintf("mutation case %q was already rolled back", caseID)
		return result
	}

	if c.BackupPath == "" {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			result.Error = fmt.Sprintf("remove file created by mutation: %s", err)
			return result
		}
		result.Success = true
		_ = log.markRolledBack(caseID)
		return result
	}

	backup, err := os.ReadFile(c.BackupPath)
	if err != nil {
		result.Error = fmt.Sprintf("read backup %s: %s", c.BackupPath, err)
		return result
	}

	perm := os.FileMode(0o644)
	var ownerUID, ownerGID = -1, -1
	if info, err := os.Stat(c.Path); err == nil {
		perm = info.Mode().Perm()
		ownerUID, ownerGID = mutation.FileOwner(info)
	}

	if err := os.WriteFile(c.Path, backup, perm); err != nil {
		result.Error = fmt.Sprintf("restore %s from backup: %s", c.Path, err)
		return result
	}
	mutation.RestoreOwnership(c.Path, ownerUID, ownerGID)
	if err := os.Chmod(c.Path, perm); err != nil {
		result.Error = fmt.Sprintf("restore permissions on %s: %s", c.Path, err)
		return result
	}

	restoredHash := mutation.HashBytes(backup)
	if restoredHash != c.PreHash {
		result.Error = "restored file hash does not match the recorded pre-mutation hash"
		return result
	}

	result.Success = true
	if err := log.markRolledBack(caseID); err != nil {
		result.Error = fmt.Sprintf("mark case rolled back: %s", err)
		result.Success = false
	}
	return result
}
