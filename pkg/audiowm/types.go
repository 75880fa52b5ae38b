package audiowm

import "github.com/himanishpuri/audiowm/internal/params"

// SyncCandidate is one reported sync-block hit, mirroring
// internal/syncfinder.Score but exported with the key label that produced
// it so callers don't need to import internal packages.
type SyncCandidate struct {
	KeyLabel  string
	FrameIdx  int
	Quality   float64
	BlockType string // "A" or "B"
}

// DecodeResult is what Get/Search return: every sync candidate found across
// every key tried, already sorted best-first.
type DecodeResult struct {
	Candidates []SyncCandidate
}

// SpeedResult is one key's detected playback-speed factor.
type SpeedResult struct {
	KeyLabel string
	Speed    float64
}

// KeyInfo describes a registered key: its label and its hex-encoded key
// material.
type KeyInfo struct {
	Label string
	Hex   string
}

func blockTypeString(bt params.BlockType) string {
	return bt.String()
}
