package main

// DecodeRequest is the request body for POST /api/decode.
type DecodeRequest struct {
	// WAVBase64 is a base64-encoded WAV file.
	WAVBase64 string `json:"wav_base64" validate:"required"`
	// KeyLabels restricts the search to these registered keys; empty
	// tries every registered key.
	KeyLabels []string `json:"key_labels,omitempty"`
	// Mode selects "block" (default, for a full uncropped capture) or
	// "clip" (for a cropped/trimmed capture).
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=block clip"`
}

// DecodeResponse is the response for POST /api/decode.
type DecodeResponse struct {
	Candidates []SyncCandidateDTO `json:"candidates"`
	Count      int                `json:"count"`
}

// SyncCandidateDTO is one sync-block hit in API responses.
type SyncCandidateDTO struct {
	KeyLabel  string  `json:"key_label"`
	FrameIdx  int     `json:"frame_idx"`
	Quality   float64 `json:"quality"`
	BlockType string  `json:"block_type"`
}

// SpeedRequest is the request body for POST /api/speed.
type SpeedRequest struct {
	WAVBase64 string   `json:"wav_base64" validate:"required"`
	KeyLabels []string `json:"key_labels,omitempty"`
}

// SpeedResponse is the response for POST /api/speed.
type SpeedResponse struct {
	Results []SpeedResultDTO `json:"results"`
}

// SpeedResultDTO is one key's detected playback speed.
type SpeedResultDTO struct {
	KeyLabel string  `json:"key_label"`
	Speed    float64 `json:"speed"`
}

// AddKeyRequest is the request body for POST /api/keys.
type AddKeyRequest struct {
	Label  string `json:"label" validate:"required"`
	HexKey string `json:"hex_key" validate:"required,len=32,hexadecimal"`
}

// KeyDTO represents a registered key in API responses, including its
// hex-encoded key material.
type KeyDTO struct {
	Label string `json:"label"`
	Hex   string `json:"hex_key"`
}

// ListKeysResponse is the response for GET /api/keys.
type ListKeysResponse struct {
	Keys  []KeyDTO `json:"keys"`
	Count int      `json:"count"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// MetricsResponse reports server health and key-registry size.
type MetricsResponse struct {
	Status   string `json:"status"`
	DBPath   string `json:"db_path"`
	KeyCount int    `json:"key_count"`
}
