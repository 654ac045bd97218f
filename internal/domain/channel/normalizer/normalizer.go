package normalizer

import (
	"time"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

// now is replaced in tests
var now = time.Now

// Normalize converts a raw webhook body of the given channel into canonical
// inbound events. Non-message notifications (delivery, read, statuses) yield
// no events and no error.
//
// When some events of a payload are unusable the valid ones are still
// returned together with a *NormalizationError counting the skipped ones.
func Normalize(channelType channel.Type, raw []byte) ([]channel.InboundEvent, error) {
	switch channelType {
	case channel.TypeFacebook:
		return normalizeMessenger(raw)
	case channel.TypeWhatsApp:
		return normalizeWhatsApp(raw)
	default:
		return nil, malformed(channelType, "unsupported channel", channel.ErrUnsupportedChannel)
	}
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() || t.Unix() <= 0 {
		return now().UTC()
	}
	return t.UTC()
}
