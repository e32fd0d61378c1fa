// Package media holds the message kinds the proxy forwards and the per-kind
// upload constraints.
//
// Validation looks at the file extension and size only. It never sniffs
// content, so callers must not treat a passing file as content-type safe.
package media

import "fmt"

// Kind is the message variant forwarded to the remote API.
type Kind string

const (
	KindText     Kind = "text"
	KindImage    Kind = "image"
	KindDocument Kind = "document"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindSticker  Kind = "sticker"
)

const MB int64 = 1 << 20

// Constraint is the fixed upload rule for one media kind.
type Constraint struct {
	// Category is the plural name reported by the info endpoint ("images").
	Category      string
	Extensions    []string
	MaxSize       int64
	AllowsCaption bool
}

var constraints = map[Kind]Constraint{
	KindImage: {
		Category:      "images",
		Extensions:    []string{"jpg", "jpeg", "png", "gif", "webp"},
		MaxSize:       16 * MB,
		AllowsCaption: true,
	},
	KindDocument: {
		Category:      "documents",
		Extensions:    []string{"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "zip", "rar", "7z"},
		MaxSize:       32 * MB,
		AllowsCaption: true,
	},
	KindAudio: {
		Category:   "audio",
		Extensions: []string{"mp3", "wav", "ogg", "m4a", "aac", "flac"},
		MaxSize:    16 * MB,
	},
	KindVideo: {
		Category:      "video",
		Extensions:    []string{"mp4", "avi", "mov", "mkv", "webm", "3gp", "flv"},
		MaxSize:       64 * MB,
		AllowsCaption: true,
	},
	KindSticker: {
		Category:   "stickers",
		Extensions: []string{"webp"},
		MaxSize:    1 * MB,
	},
}

// MediaKinds lists the file-carrying kinds in display order.
func MediaKinds() []Kind {
	return []Kind{KindImage, KindDocument, KindAudio, KindVideo, KindSticker}
}

// ConstraintFor returns the upload rule for a file-carrying kind.
func ConstraintFor(k Kind) (Constraint, bool) {
	c, ok := constraints[k]
	return c, ok
}

// HasFile reports whether messages of this kind carry a file payload.
func (k Kind) HasFile() bool {
	_, ok := constraints[k]
	return ok
}

// AllowsCaption reports whether a caption may accompany this kind.
func (k Kind) AllowsCaption() bool {
	return constraints[k].AllowsCaption
}

func (k Kind) Valid() bool {
	return k == KindText || k.HasFile()
}

// ParseKind maps a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown message kind %q", s)
	}
	return k, nil
}

// HumanSize renders a byte limit the way the info endpoint reports it ("16MB").
func HumanSize(n int64) string {
	if n%MB == 0 {
		return fmt.Sprintf("%dMB", n/MB)
	}
	return fmt.Sprintf("%.1fMB", float64(n)/float64(MB))
}
