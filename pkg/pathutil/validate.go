// Package pathutil provides filename hygiene for names recorded in the chain.
package pathutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
)

// MaxFilenameBytes bounds a recorded filename.
const MaxFilenameBytes = 255

// CleanFilename reduces a client-supplied upload name to a safe base name.
// The name is NFC-normalized so visually identical names hash identically,
// directory components from either separator style are dropped, and names
// that are empty, dot-only, too long or contain control characters are
// rejected with ErrNameInvalid.
func CleanFilename(name string) (string, error) {
	if !utf8.ValidString(name) {
		return "", errclass.ErrNameInvalid.WithMessage("filename is not valid UTF-8")
	}

	name = norm.NFC.String(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)

	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

// ValidateFilename checks an already-cleaned base name.
func ValidateFilename(name string) error {
	if name == "" {
		return errclass.ErrNameInvalid.WithMessage("filename must not be empty")
	}
	if name == "." || name == ".." {
		return errclass.ErrNameInvalid.WithMessagef("filename must not be %q", name)
	}
	if len(name) > MaxFilenameBytes {
		return errclass.ErrNameInvalid.WithMessagef("filename exceeds %d bytes", MaxFilenameBytes)
	}
	if strings.ContainsAny(name, `/\`) {
		return errclass.ErrNameInvalid.WithMessagef("filename must not contain separators: %s", name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return errclass.ErrNameInvalid.WithMessagef("filename must not contain control characters: %q", name)
		}
	}
	if !norm.NFC.IsNormalString(name) {
		return errclass.ErrNameInvalid.WithMessagef("filename is not NFC-normalized: %q", name)
	}
	return nil
}
