package mirror

import (
	"encoding/json"
	"fmt"
	"time"
)

// Listener is a callback function that receives events during a run.
type Listener func(fmt.Stringer)

func jsonString(v interface{}) string {
	b, _ := json.Marshal(map[string]interface{}{
		fmt.Sprintf("%T", v): v,
	})
	return string(b)
}

// EventPublicCopy is emitted for each auxiliary file copied into the output.
type EventPublicCopy struct {
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
}

func (e EventPublicCopy) String() string { return jsonString(e) }

// EventCacheReset is emitted when a corrupt cache file was discarded.
type EventCacheReset struct {
	Project string `json:"project,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (e EventCacheReset) String() string { return jsonString(e) }

// EventReleaseScan is emitted for each release examined.
type EventReleaseScan struct {
	Project     string    `json:"project,omitempty"`
	Tag         string    `json:"tag,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Prerelease  bool      `json:"prerelease,omitempty"`
	Debs        int       `json:"debs"`
	Missing     int       `json:"missing"`
}

func (e EventReleaseScan) String() string { return jsonString(e) }

// EventEarlyExit is emitted when the scan of a project stops at a release.
type EventEarlyExit struct {
	Project string `json:"project,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (e EventEarlyExit) String() string { return jsonString(e) }

// EventAssetIngested is emitted when an asset was downloaded, scanned and
// recorded in the cache.
type EventAssetIngested struct {
	Project      string `json:"project,omitempty"`
	Tag          string `json:"tag,omitempty"`
	Filename     string `json:"filename,omitempty"`
	Package      string `json:"package,omitempty"`
	Version      string `json:"version,omitempty"`
	Architecture string `json:"architecture,omitempty"`
}

func (e EventAssetIngested) String() string { return jsonString(e) }

// EventAssetStaged is emitted in exploratory mode when an asset was
// downloaded and left on disk.
type EventAssetStaged struct {
	Project string `json:"project,omitempty"`
	Tag     string `json:"tag,omitempty"`
	Path    string `json:"path,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

func (e EventAssetStaged) String() string { return jsonString(e) }

// EventCacheSaved is emitted after the cache of a project was persisted.
type EventCacheSaved struct {
	Project string `json:"project,omitempty"`
	Entries int    `json:"entries"`
	Changed bool   `json:"changed,omitempty"`
}

func (e EventCacheSaved) String() string { return jsonString(e) }

// EventReleaseFile is emitted once the Release file was generated, or found
// up to date.
type EventReleaseFile struct {
	Path    string    `json:"path,omitempty"`
	Date    time.Time `json:"date"`
	Skipped bool      `json:"skipped,omitempty"`
}

func (e EventReleaseFile) String() string { return jsonString(e) }
