package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrInvalidCoordinate = "E_INVALID_COORDINATE"
	ErrInvalidLOD        = "E_INVALID_LOD"
	ErrTooLarge          = "E_TOO_LARGE"
	ErrNotFound          = "E_NOT_FOUND"
	ErrUnavailable       = "E_UNAVAILABLE"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrBadRequest:        {},
	ErrInvalidCoordinate: {},
	ErrInvalidLOD:        {},
	ErrTooLarge:          {},
	ErrNotFound:          {},
	ErrUnavailable:       {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
