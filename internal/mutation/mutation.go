// Package mutation implements Anna's only write path onto the live
// filesystem: appending a line to an existing file. Every mutation is
// evidence-first (stat the file, preview its tail, hash its contents)
// before a byte is written, and every write is preceded by a durable
// backup so it can be undone by case ID alone. There is deliberately no
// other mutation kind — append-line is the smallest operation that still
// lets Fix-It apply a config change, and the sandbox/policy gates below
// are sized for exactly that operation.
package mutation

import (
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/annassistant/anna/pkg/types"
)

// Sandbox confirmation phrases. These are compared verbatim against what
// a caller (the RPC layer, ultimately a human) supplies; there is no
// fuzzy matching by design; an exact phrase is the whole point of asking.
const (
	ConfirmSandbox = "yes"
	ConfirmHome    = "I CONFIRM (medium risk)"
)

// maxPreviewLines caps how much of a file's tail is read for a preview,
// so evidence collection stays cheap on large log files.
const maxPreviewLines = 20

// SandboxCheck classifies a path into one of Anna's three write tiers and
// states what confirmation phrase (if any) clears it.
type SandboxCheck struct {
	Class               types.SandboxClass `json:"class"`
	Risk                types.RiskLevel    `json:"risk"`
	ConfirmationPhrase  string             `json:"confirmation_phrase,omitempty"`
	Reason              string             `json:"reason"`
}

// CheckSandbox classifies path relative to the sandbox root (normally the
// daemon's cwd or /tmp) and the caller's home directory. System paths —
// anything outside both — are never writable in this version, matching
// the original's decision to ship append-line mutations without a system
// tier at all.
func CheckSandbox(path, sandboxRoot, home string) (SandboxCheck, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return SandboxCheck{}, fmt.Errorf("resolve absolute path for %s: %w", path, err)
	}

	if sandboxRoot != "" {
		if absSandboxRoot, err := filepath.Abs(sandboxRoot); err == nil && withinDir(abs, absSandboxRoot) {
			return SandboxCheck{
				Class:              types.SandboxClassSandbox,
				Risk:               types.RiskLow,
				ConfirmationPhrase: ConfirmSandbox,
				Reason:             fmt.Sprintf("%s is inside the sandbox root %s", abs, absSandboxRoot),
			}, nil
		}
	}

	if withinDir(abs, os.TempDir()) {
		return SandboxCheck{
			Class:              types.SandboxClassSandbox,
			Risk:               types.RiskLow,
			ConfirmationPhrase: ConfirmSandbox,
			Reason:             fmt.Sprintf("%s is inside the system temp directory", abs),
		}, nil
	}

	if home != "" {
		if absHome, err := filepath.Abs(home); err == nil && withinDir(abs, absHome) {
			return SandboxCheck{
				Class:              types.SandboxClassHome,
				Risk:               types.RiskMedium,
				ConfirmationPhrase: ConfirmHome,
				Reason:             fmt.Sprintf("%s is inside the home directory %s", abs, absHome),
			}, nil
		}
	}

	return SandboxCheck{
		Class:  types.SandboxClassSystem,
		Risk:   types.RiskHigh,
		Reason: fmt.Sprintf("%s is outside both the sandbox and home directory", abs),
	}, nil
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// FileStatEvidence is what CollectEvidence records about the target
// file's state before any write.
type FileStatEvidence struct {
	Path    string `json:"path"`
	Exists  bool   `json:"exists"`
	SizeB   int64  `json:"size_bytes"`
	Mode    string `json:"mode,omitempty"`
}

// FilePreviewEvidence is the last lines of the target file, read for
// human review before a mutation is confirmed.
type FilePreviewEvidence struct {
	LastLines []string `json:"last_lines"`
	Truncated bool     `json:"truncated"`
}

// Evidence bundles everything collected about a file before mutating it:
// its stat, a tail preview, and a content hash to detect concurrent
// modification between evidence collection and execution.
type Evidence struct {
	Stat    FileStatEvidence     `json:"stat"`
	Preview FilePreviewEvidence  `json:"preview"`
	PreHash string               `json:"pre_hash"`
}

// CollectEvidence stats path, previews its tail, and hashes its current
// contents. A missing file is not an error here — appending to a
// not-yet-created file is valid — but its absence is recorded so
// CheckMutationAllowed and the diff preview can react to it.
func CollectEvidence(path string) (Evidence, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Evidence{
			Stat: FileStatEvidence{Path: path, Exists: false},
		}, nil
	}
	if err != nil {
		return Evidence{}, fmt.Errorf("stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Evidence{}, fmt.Errorf("read %s: %w", path, err)
	}

	lines := splitLines(string(data))
	preview := lines
	truncated := false
	if len(lines) > maxPreviewLines {
		preview = lines[len(lines)-maxPreviewLines:]
		truncated = true
	}

	return Evidence{
		Stat: FileStatEvidence{
			Path:   path,
			Exists: true,
			SizeB:  info.Size(),
			Mode:   info.Mode().String(),
		},
		Preview: FilePreviewEvidence{LastLines: preview, Truncated: truncated},
		PreHash: hashBytes(data),
	}, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// DiffPreview is what a caller sees before confirming a mutation: the
// file's current tail and what it will look like once the line is
// appended.
type DiffPreview struct {
	BeforeLines  []string `json:"before_lines"`
	AppendedLine string   `json:"appended_line"`
	AfterLines   []string `json:"after_lines"`
}

// GenerateDiffPreview builds the before/after tail view for appendedLine
// against already-collected evidence.
func GenerateDiffPreview(ev Evidence, appendedLine string) DiffPreview {
	after := append(append([]string{}, ev.Preview.LastLines...), appendedLine)
	if len(after) > maxPreviewLines {
		after = after[len(after)-maxPreviewLines:]
	}
	return DiffPreview{
		BeforeLines:  ev.Preview.LastLines,
		AppendedLine: appendedLine,
		AfterLines:   after,
	}
}

// CheckMutationAllowed gates a mutation on its sandbox classification and
// the confirmation phrase the caller supplied. System-tier paths are
// always blocked; sandbox and home tiers require an exact phrase match.
func CheckMutationAllowed(check SandboxCheck, confirmationGiven string) *types.AnnaError {
	if check.Class == types.SandboxClassSystem {
		return types.NewPolicyBlocked(
			"mutations outside the sandbox and home directory are not permitted",
			"", "system-path-blocked",
		)
	}

	if confirmationGiven != check.ConfirmationPhrase {
		return types.NewPolicyBlocked(
			fmt.Sprintf("mutation requires confirmation phrase %q", check.ConfirmationPhrase),
			"", string(check.Class)+"-confirmation-required",
		)
	}

	return nil
}

// ExecuteAppendLine performs the actual write: back up the file, append
// the line, restore the original owner and permissions onto the new
// file, then verify the backup's hash still matches what evidence
// collection observed (catching a concurrent modification race). now and
// backupDir are parameters rather than package state so tests can control
// both deterministically.
func ExecuteAppendLine(path, appendedLine string, ev Evidence, backupDir string, now time.Time) types.MutationCase {
	caseID := GenerateMutationCaseID(now)
	result := types.MutationCase{
		CaseID:       caseID,
		Path:         path,
		PreHash:      ev.PreHash,
		AppendedLine: appendedLine,
		Timestamp:    now.UTC(),
	}

	var ownerUID, ownerGID int = -1, -1
	var perm os.FileMode = 0o644
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
		ownerUID, ownerGID = fileOwner(info)
	}

	backupPath, err := backupFile(path, ev, backupDir, caseID)
	if err != nil {
		result.Error = fmt.Sprintf("backup failed: %s", err)
		return result
	}
	result.BackupPath = backupPath

	if backupPath != "" {
		if current, herr := hashFile(path); herr == nil && current != ev.PreHash {
			result.Error = "file changed since evidence was collected, refusing to append"
			return result
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		result.Error = fmt.Sprintf("open %s for append: %s", path, err)
		return result
	}
	_, writeErr := f.WriteString(appendedLine + "\n")
	closeErr := f.Close()
	if writeErr != nil {
		result.Error = fmt.Sprintf("append to %s: %s", path, writeErr)
		return result
	}
	if closeErr != nil {
		result.Error = fmt.Sprintf("close %s: %s", path, closeErr)
		return result
	}

	restoreOwnership(path, ownerUID, ownerGID)
	if err := os.Chmod(path, perm); err != nil {
		result.Error = fmt.Sprintf("restore permissions on %s: %s", path, err)
		return result
	}

	postHash, err := hashFile(path)
	if err != nil {
		result.Error = fmt.Sprintf("hash %s after write: %s", path, err)
		return result
	}
	result.PostHash = postHash
	result.Success = true
	return result
}

func backupFile(path string, ev Evidence, backupDir, caseID string) (string, error) {
	if !ev.Stat.Exists {
		return "", nil
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir %s: %w", backupDir, err)
	}
	backupPath := filepath.Join(backupDir, caseID+".bak")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s for backup: %w", path, err)
	}
	if err := os.WriteFile(backupPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write backup %s: %w", backupPath, err)
	}
	return backupPath, nil
}

// GenerateMutationCaseID produces a millisecond-stamped, globally
// sortable case identifier. Using wall-clock milliseconds rather than a
// random ID keeps rollback lookups human-readable in logs.
func GenerateMutationCaseID(now time.Time) string {
	return "mut_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// HashFile hashes a file's current on-disk contents with a fast,
// non-cryptographic hash. This is a sanity check for concurrent
// modification between evidence collection and execution (or, in
// rollback, between backup and restore) — not a security primitive, the
// same role Rust's DefaultHasher played in the original.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := fnv.New64a()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

func hashFile(path string) (string, error) { return HashFile(path) }

// HashBytes hashes an in-memory byte slice with the same algorithm
// HashFile uses, so evidence hashes, post-write hashes, and restored-backup
// hashes are all directly comparable.
func HashBytes(data []byte) string {
	h := fnv.New64a()
	h.Write(data)
	return strconv.FormatUint(h.Sum64(), 16)
}

func hashBytes(data []byte) string { return HashBytes(data) }

// FileOwner exposes fileOwner for use by the rollback package, which
// needs the same owner-preservation behavior when restoring a backup.
func FileOwner(info os.FileInfo) (uid, gid int) { return fileOwner(info) }

// RestoreOwnership exposes restoreOwnership for the rollback package.
func RestoreOwnership(path string, uid, gid int) { restoreOwnership(path, uid, gid) }
