package normalizer

import (
	"encoding/json"
	"strings"
	"time"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

type messengerPayload struct {
	Object string           `json:"object"`
	Entry  []messengerEntry `json:"entry"`
}

type messengerEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []messengerEvent `json:"messaging"`
}

type messengerEvent struct {
	Sender    messengerParty    `json:"sender"`
	Recipient messengerParty    `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *messengerMessage `json:"message"`
}

type messengerParty struct {
	ID string `json:"id"`
}

type messengerMessage struct {
	MID         string                `json:"mid"`
	Text        string                `json:"text"`
	IsEcho      bool                  `json:"is_echo"`
	Attachments []messengerAttachment `json:"attachments"`
}

type messengerAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

func normalizeMessenger(raw []byte) ([]channel.InboundEvent, error) {
	var payload messengerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, malformed(channel.TypeFacebook, "invalid json", err)
	}
	if payload.Object != "page" {
		return nil, malformed(channel.TypeFacebook, "unexpected object "+quote(payload.Object), nil)
	}

	var events []channel.InboundEvent
	skipped := 0
	for _, entry := range payload.Entry {
		for _, ev := range entry.Messaging {
			if ev.Message == nil {
				// delivery, read, postback and referral notifications
				continue
			}
			out, ok := messengerInbound(entry.ID, ev)
			if !ok {
				skipped++
				continue
			}
			if out.Text == "" && len(out.MediaRefs) == 0 {
				continue
			}
			events = append(events, out)
		}
	}

	if skipped > 0 {
		return events, &NormalizationError{
			ChannelType: channel.TypeFacebook,
			Reason:      "message events without ids",
			Skipped:     skipped,
		}
	}
	return events, nil
}

// messengerInbound maps one messaging item. Echoes of page-sent messages
// carry the page as sender and the customer as recipient.
func messengerInbound(entryID string, ev messengerEvent) (channel.InboundEvent, bool) {
	msg := ev.Message
	account, customer := ev.Recipient.ID, ev.Sender.ID
	if msg.IsEcho {
		account, customer = ev.Sender.ID, ev.Recipient.ID
	}
	if account == "" {
		account = entryID
	}
	if msg.MID == "" || account == "" || customer == "" || ev.Sender.ID == "" {
		return channel.InboundEvent{}, false
	}

	var refs []string
	for _, att := range msg.Attachments {
		if att.Payload.URL != "" {
			refs = append(refs, att.Payload.URL)
		}
	}

	return channel.InboundEvent{
		ChannelType:        channel.TypeFacebook,
		AccountExternalID:  account,
		CustomerExternalID: customer,
		SenderExternalID:   ev.Sender.ID,
		ProviderMessageID:  msg.MID,
		Timestamp:          timestampOrNow(time.UnixMilli(ev.Timestamp)),
		Text:               strings.TrimSpace(msg.Text),
		MediaRefs:          refs,
		IsEcho:             msg.IsEcho,
	}, true
}

func quote(s string) string {
	return `"` + s + `"`
}
