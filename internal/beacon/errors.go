package beacon

import "errors"

// Decode failures surfaced by the classifier and decryptor. Callers match
// them with errors.Is; wrapped variants carry the offending lengths.
var (
	ErrTruncated            = errors.New("frame truncated")
	ErrUnrecognized         = errors.New("frame not recognized")
	ErrMissingKeyMaterial   = errors.New("missing key material")
	ErrAuthenticationFailed = errors.New("authentication failed")
)
