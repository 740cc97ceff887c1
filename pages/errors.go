package pages

import "errors"

var (
	ErrPageNotFound          = errors.New("page not found")
	ErrVersionNotFound       = errors.New("version not found")
	ErrInvalidVersionNumber  = errors.New("invalid version number")
	ErrMissingRequiredField  = errors.New("missing required field")
	ErrSlugTaken             = errors.New("slug already taken")
	ErrCurrentVersionMissing = errors.New("page has no current version")
	ErrDuplicateSlug         = errors.New("slug resolves to more than one page")
)

// IsIntegrityError reports whether err signals stored data that breaks an
// invariant the service maintains.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrCurrentVersionMissing) || errors.Is(err, ErrDuplicateSlug)
}
