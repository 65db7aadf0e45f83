package entity

import (
	"strconv"
	"strings"
	"time"
)

// Kind is the closed set of remote object variants. Every operation that
// differs per variant (download, delete) switches on it instead of
// inspecting runtime types.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
	KindTransfer
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	case KindTransfer:
		return "transfer"
	case KindDownload:
		return "download"
	}

	return "unknown"
}

// Item is any remote object addressable by a stable ID.
type Item interface {
	Kind() Kind
	ItemID() string
	DisplayName() string
}

// Same reports entity equality by (kind, id).
func Same(a, b Item) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Kind() == b.Kind() && a.ItemID() == b.ItemID()
}

// Size decodes the remote "size" field, which the API serves either as a
// number or a digit string. Anything else decodes to 0 (unknown).
type Size int64

func (s *Size) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)

	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		*s = 0

		return nil
	}

	*s = Size(n)

	return nil
}

// Timestamp decodes a unix-seconds field with the same number-or-string
// leniency as Size. Zero means unknown.
type Timestamp time.Time

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)

	n, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		*t = Timestamp(time.Unix(0, 0))

		return nil
	}

	*t = Timestamp(time.Unix(n, 0))

	return nil
}

func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// File is a downloadable remote file. Immutable after construction;
// superseded by re-listing, never mutated.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       Size      `json:"size"`
	CreatedAt  Timestamp `json:"created_at"`
	Link       string    `json:"link"`
	StreamLink string    `json:"stream_link"`
	Hash       string    `json:"hash"`
}

func (f *File) Kind() Kind          { return KindFile }
func (f *File) ItemID() string      { return f.ID }
func (f *File) DisplayName() string { return f.Name }

// Folder is a remote directory, resolved lazily into children via a
// listing call.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt Timestamp `json:"created_at"`
}

func (f *Folder) Kind() Kind          { return KindFolder }
func (f *Folder) ItemID() string      { return f.ID }
func (f *Folder) DisplayName() string { return f.Name }

// Transfer statuses as the remote reports them.
const (
	StatusQueued   = "queued"
	StatusRunning  = "running"
	StatusWaiting  = "waiting"
	StatusFinished = "finished"
	StatusError    = "error"
)

// messages the remote uses for jobs that will never make progress.
const (
	MsgLoading      = "Loading..."
	msgDidNotFinish = "Torrent did not finish for "
	MsgCouldNotAdd  = "Could not add"
)

// Transfer is a remote asynchronous job that eventually produces a File or
// Folder.
type Transfer struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Status   string  `json:"status"`
	Message  string  `json:"message"`
	FolderID string  `json:"folder_id"`
	FileID   string  `json:"file_id"`
	Size     Size    `json:"size"`
	Progress float64 `json:"progress"`
	Src      string  `json:"src"`

	source *Source
}

func (t *Transfer) Kind() Kind          { return KindTransfer }
func (t *Transfer) ItemID() string      { return t.ID }
func (t *Transfer) DisplayName() string { return t.Name }

// IsRunning reports whether the job is still making (or may still make)
// progress. A "waiting" transfer whose message says the torrent did not
// finish is dead even though the remote keeps reporting waiting.
func (t *Transfer) IsRunning() bool {
	switch t.Status {
	case StatusQueued, StatusRunning:
		return true
	case StatusWaiting:
		return !strings.HasPrefix(t.Message, msgDidNotFinish)
	}

	return false
}

// StatusMessage is the human-readable state: the bare status once finished,
// otherwise status plus the remote's message detail.
func (t *Transfer) StatusMessage() string {
	if t.Status == StatusFinished || t.Message == "" {
		return t.Status
	}

	return t.Status + ": " + t.Message
}

// Source lazily parses the submission descriptor the transfer was created
// from. Nil when the remote did not echo a src field.
func (t *Transfer) Source() *Source {
	if t.source == nil && t.Src != "" {
		t.source = ParseSource(t.Src)
	}

	return t.source
}

// Produced reports whether a resolved transfer links to a produced entity.
// Finished or errored transfers without one are orphans.
func (t *Transfer) Produced() bool {
	return t.FolderID != "" || t.FileID != ""
}

// Download is a fetchable link generated on demand (zip/generate,
// transfer/directdl or torrent/browse), not listed in the account.
type Download struct {
	Name         string
	Link         string
	GeneratedZip bool
	Size         Size
}

func (d *Download) Kind() Kind          { return KindDownload }
func (d *Download) ItemID() string      { return d.Link }
func (d *Download) DisplayName() string { return d.Name }

// NewZipDownload builds the Download produced by zip/generate for a folder.
func NewZipDownload(folder *Folder, location string) *Download {
	return &Download{
		Name:         folder.Name + ".zip",
		Link:         location,
		GeneratedZip: true,
		Size:         -1,
	}
}

// ensure the variant set stays closed over Item.
var (
	_ Item = (*File)(nil)
	_ Item = (*Folder)(nil)
	_ Item = (*Transfer)(nil)
	_ Item = (*Download)(nil)
)
