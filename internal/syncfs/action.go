package syncfs

// ActionKind enumerates what a synchronizer action does. Analogous to the
// teacher's ActionType (internal/sync/types.go), generalized to B2's
// vocabulary: no ActionFolderCreate (B2 has no folder objects) and an
// explicit ActionHideRemote since B2 retains hidden versions rather than
// deleting outright.
type ActionKind int

const (
	ActionUpload ActionKind = iota
	ActionDownload
	ActionDeleteVersion
	ActionHideRemote
)

func (k ActionKind) String() string {
	switch k {
	case ActionUpload:
		return "upload"
	case ActionDownload:
		return "download"
	case ActionDeleteVersion:
		return "delete_version"
	case ActionHideRemote:
		return "hide_remote"
	default:
		return "unknown"
	}
}

// Action is one unit of sync work resolved from a Pair by Policy
// resolution: an upload/download of the current content, or a version
// lifecycle operation (hide/delete) driven by KeepMode.
type Action struct {
	Kind         ActionKind
	RelativePath string

	// BucketID/FileName/FileID are populated for remote-targeting actions
	// (upload destination or delete/hide target).
	BucketID string
	FileName string
	FileID   string

	// LocalPath is populated for actions that read or write local bytes.
	LocalPath string

	// Size/ModTime describe the transferring side's current state, for
	// logging and for the emerge/download managers' planning input.
	Size    int64
	ModTime int64 // Unix millis, matching B2's UploadTimestamp units
}
