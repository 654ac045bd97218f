package normalizer

import (
	"fmt"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

// NormalizationError reports a payload that cannot be turned into inbound
// events. Such payloads are acknowledged to the provider and never persisted.
type NormalizationError struct {
	ChannelType channel.Type
	Reason      string
	// Skipped counts individual events dropped from an otherwise valid payload
	Skipped int
	Err     error
}

func (e *NormalizationError) Error() string {
	msg := fmt.Sprintf("normalizing %s payload: %s", e.ChannelType, e.Reason)
	if e.Skipped > 0 {
		msg += fmt.Sprintf(" (%d events skipped)", e.Skipped)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

func malformed(ct channel.Type, reason string, err error) *NormalizationError {
	return &NormalizationError{ChannelType: ct, Reason: reason, Err: err}
}
