package factory

import (
	"errors"

	"ammVault/internal/codec"
)

var (
	ErrIdenticalAddresses = errors.New("identical addresses")
	ErrEmptyAddresses     = errors.New("empty addresses")
	ErrPairExists         = errors.New("pair exists")
	ErrReplyID            = errors.New("unknown reply id")
	ErrReplyData          = errors.New("reply data error")
	ErrTokenNotFound      = errors.New("token not found")
)

// Kind classifies err for logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTokenNotFound):
		return "lookup"
	case errors.Is(err, ErrReplyID), errors.Is(err, ErrReplyData), errors.Is(err, codec.ErrMalformed):
		return "workflow"
	default:
		return "validation"
	}
}
