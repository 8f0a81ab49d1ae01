package scans

import (
	"encoding/json"
	"fmt"
	"time"

	"issue-scout/internal/structure"
)

// CursorVersion is the only cursor shape this build reads and writes.
const CursorVersion = 1

// Phase is a checkpointed stage of a scan run. Phases only move forward.
type Phase string

const (
	PhaseTree    Phase = "tree"
	PhaseFiles   Phase = "files"
	PhaseSignals Phase = "signals"
	PhaseLLM     Phase = "llm"
)

var phaseOrder = map[Phase]int{
	PhaseTree:    0,
	PhaseFiles:   1,
	PhaseSignals: 2,
	PhaseLLM:     3,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok
}

// FilesPayload is the state carried only while the files phase is in progress.
type FilesPayload struct {
	FilesToScan []structure.CategorizedFile `json:"filesToScan"`
}

// Cursor is the persisted resume point of a scan job.
type Cursor struct {
	Version           int           `json:"version"`
	Phase             Phase         `json:"phase"`
	LastProcessedFile string        `json:"lastProcessedFile,omitempty"`
	FilesProcessed    int           `json:"filesProcessed"`
	TotalFiles        int           `json:"totalFiles"`
	Timestamp         time.Time     `json:"timestamp"`
	Files             *FilesPayload `json:"files,omitempty"`
}

// NewCursor returns a cursor positioned at the start of the tree phase.
func NewCursor(now time.Time) Cursor {
	return Cursor{Version: CursorVersion, Phase: PhaseTree, Timestamp: now}
}

// DecodeCursor parses a persisted cursor. A nil or JSON null payload yields (nil, nil).
// Anything that does not describe a usable resume point is ErrCursorCorrupt.
func DecodeCursor(raw json.RawMessage) (*Cursor, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCursorCorrupt, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks version, phase and the files payload invariants.
func (c Cursor) Validate() error {
	if c.Version != CursorVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCursorCorrupt, c.Version)
	}
	if !c.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %q", ErrCursorCorrupt, c.Phase)
	}
	if c.Phase != PhaseFiles {
		if c.Files != nil {
			return fmt.Errorf("%w: files payload outside files phase", ErrCursorCorrupt)
		}
		return nil
	}
	if c.Files == nil {
		return fmt.Errorf("%w: files phase without payload", ErrCursorCorrupt)
	}
	if c.TotalFiles != len(c.Files.FilesToScan) {
		return fmt.Errorf("%w: total %d does not match %d files", ErrCursorCorrupt, c.TotalFiles, len(c.Files.FilesToScan))
	}
	if c.FilesProcessed < 0 || c.FilesProcessed > c.TotalFiles {
		return fmt.Errorf("%w: position %d outside [0,%d]", ErrCursorCorrupt, c.FilesProcessed, c.TotalFiles)
	}
	return nil
}

// Encode validates and marshals the cursor for persistence.
func (c Cursor) Encode() (json.RawMessage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// Advance moves to the immediately following phase. The files payload is dropped
// when leaving the files phase.
func (c Cursor) Advance(next Phase, now time.Time) (Cursor, error) {
	if !next.Valid() || phaseOrder[next] != phaseOrder[c.Phase]+1 {
		return c, fmt.Errorf("scans: cannot move cursor from %s to %s", c.Phase, next)
	}
	c.Phase = next
	c.Timestamp = now
	if next != PhaseFiles {
		c.Files = nil
	}
	return c, nil
}

// EnterFiles advances a tree cursor into the files phase with the capped scan list.
func (c Cursor) EnterFiles(files []structure.CategorizedFile, now time.Time) (Cursor, error) {
	next, err := c.Advance(PhaseFiles, now)
	if err != nil {
		return c, err
	}
	if files == nil {
		files = []structure.CategorizedFile{}
	}
	next.Files = &FilesPayload{FilesToScan: files}
	next.TotalFiles = len(files)
	next.FilesProcessed = 0
	next.LastProcessedFile = ""
	return next, nil
}

// Checkpoint records that files[0:processed) are done.
func (c Cursor) Checkpoint(processed int, lastFile string, now time.Time) Cursor {
	c.FilesProcessed = processed
	if lastFile != "" {
		c.LastProcessedFile = lastFile
	}
	c.Timestamp = now
	return c
}
