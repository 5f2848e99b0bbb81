package store

import (
	"errors"

	"github.com/aws/smithy-go"
)

var (
	// ErrConflict is returned when a transactional write is rejected because
	// one of its conditions failed, e.g. the uniqueness marker already exists.
	ErrConflict = errors.New("favorites: conditional write rejected")

	// ErrInvalidCursor is returned by EncodeCursor for keys it cannot represent.
	ErrInvalidCursor = errors.New("favorites: unsupported pagination key")
)

// ErrorCode returns the DynamoDB error code carried by err, or "" when err
// did not come from the service.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
