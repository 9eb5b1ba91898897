package manifest

// Verification statuses.
const (
	StatusVerified = "verified"
	StatusFailed   = "failed"
	StatusPending  = "pending"
	StatusUnknown  = "unknown"
)

type SaveInfo struct {
	MapName        string   `json:"map_name"`
	MapDisplayName string   `json:"map_display_name"`
	PlayerCount    int      `json:"player_count"`
	TribeCount     int      `json:"tribe_count"`
	AutoSaveCount  int      `json:"auto_save_count"`
	MainSaveSize   int64    `json:"main_save_size_bytes"`
	TotalFileCount int      `json:"total_file_count"`
	SuggestedTags  []string `json:"suggested_tags"`
}

// Metadata is the <archive>.meta.json sidecar.
type Metadata struct {
	Notes    string    `json:"notes"`
	Tags     []string  `json:"tags"`
	SaveInfo *SaveInfo `json:"save_info,omitempty"`
}

// Verification is the <archive>.verify.json sidecar.
type Verification struct {
	Status    string `json:"status"`
	FileCount int    `json:"file_count"`
	CheckedAt int64  `json:"checked_at"`
	Error     string `json:"error,omitempty"`
	Checksum  string `json:"checksum,omitempty"`
}
