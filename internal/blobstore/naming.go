package blobstore

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/unidecode"
)

const (
	maxBaseLength = 100
	maxExtLength  = 16
)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.]`)
	validName   = regexp.MustCompile(`^[0-9]+-[0-9a-f]{8}-[a-zA-Z0-9_.]+$`)
)

// StoredName derives a collision-resistant, ASCII-only name from a client
// supplied filename: <unix millis>-<8 hex>-<transliterated base><ext>.
func StoredName(originalName string, now time.Time) string {
	// browsers on Windows may send full paths
	originalName = filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))

	ext := filepath.Ext(originalName)
	base := strings.TrimSuffix(originalName, ext)

	safeExt := ""
	if ext != "" {
		safeExt = "." + sanitize(strings.TrimPrefix(ext, "."))
		if safeExt == "." {
			safeExt = ""
		}
	}
	// an overlong extension is treated as part of the base so the cap applies
	if len(safeExt) > maxExtLength+1 {
		base, safeExt = originalName, ""
	}

	safeBase := sanitize(base)
	if safeBase == "" {
		safeBase = "file"
	}
	if len(safeBase) > maxBaseLength {
		safeBase = safeBase[:maxBaseLength]
	}

	disambiguator := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%d-%s-%s%s", now.UnixMilli(), disambiguator, safeBase, safeExt)
}

// ValidName reports whether name has the shape produced by StoredName
func ValidName(name string) bool {
	if len(name) > 255 {
		return false
	}
	return validName.MatchString(name)
}

func sanitize(s string) string {
	s = unidecode.Unidecode(s)
	s = unsafeChars.ReplaceAllString(s, "_")
	return strings.Trim(s, ".")
}
