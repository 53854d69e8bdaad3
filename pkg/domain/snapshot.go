package domain

import "time"

// SnapshotStatus records whether a capture attempt produced content
type SnapshotStatus string

const (
	SnapshotSuccess SnapshotStatus = "Success"
	SnapshotFailed  SnapshotStatus = "Failed"
)

// Snapshot is one fetch attempt for a Target. Snapshots are written once and
// never updated; Content is nil exactly when Status is SnapshotFailed.
type Snapshot struct {
	ID        string         `bson:"_id" json:"id"`
	TargetID  string         `bson:"target_id" json:"target_id"`
	Content   *string        `bson:"content" json:"content"`
	Status    SnapshotStatus `bson:"status" json:"status"`
	CreatedAt time.Time      `bson:"created_at" json:"created_at"`
}

// Text returns the captured content, or "" for a failed snapshot.
func (s *Snapshot) Text() string {
	if s == nil || s.Content == nil {
		return ""
	}
	return *s.Content
}

// Change is a recorded difference between two consecutive successful
// snapshots of the same target, attached to the newer one.
type Change struct {
	ID          string `bson:"_id" json:"id"`
	SnapshotID  string `bson:"snapshot_id" json:"snapshot_id"`
	DiffContent string `bson:"diff_content" json:"diff_content"`
}
