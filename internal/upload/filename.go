package upload

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"voicecollect/internal/session"
)

const (
	ContentType = "audio/ogg"
	Extension   = ".ogg"

	// MaxWordLength keeps object names well under the 1024-byte GCS limit.
	MaxWordLength = 64
)

var (
	ErrEmptyWord    = errors.New("upload: word is required")
	ErrWordTooLong  = fmt.Errorf("upload: word is longer than %d bytes", MaxWordLength)
	ErrNoSession    = errors.New("upload: no session")
	unsafeFilenameR = regexp.MustCompile(`[^A-Za-z0-9_.-]`)
)

// SecureFilename reduces name to a flat ASCII filename made of letters,
// digits, '_', '.' and '-'. Path separators become word breaks.
// The result may be empty.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	name = b.String()

	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameR.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// ObjectName builds the storage name for one clip:
// <word>_<sessionID>_<random>.ogg, sanitized.
func ObjectName(word, sessionID string) (string, error) {
	if word == "" {
		return "", ErrEmptyWord
	}
	if len(word) > MaxWordLength {
		return "", ErrWordTooLong
	}
	if !session.ValidID(sessionID) {
		return "", ErrNoSession
	}
	return SecureFilename(word + "_" + sessionID + "_" + session.NewID() + Extension), nil
}
