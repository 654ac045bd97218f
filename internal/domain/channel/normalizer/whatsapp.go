package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	channel "github.com/vadim/neo-gateway/internal/domain/channel/entity"
)

type whatsAppPayload struct {
	Object string          `json:"object"`
	Entry  []whatsAppEntry `json:"entry"`
}

type whatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []whatsAppChange `json:"changes"`
}

type whatsAppChange struct {
	Field string        `json:"field"`
	Value whatsAppValue `json:"value"`
}

type whatsAppValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []whatsAppMessage `json:"messages"`
	// business-app echoes delivered on the smb_message_echoes field
	MessageEchoes []whatsAppMessage `json:"message_echoes"`
}

type whatsAppMessage struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Text      *whatsAppText  `json:"text"`
	Image     *whatsAppMedia `json:"image"`
	Video     *whatsAppMedia `json:"video"`
	Audio     *whatsAppMedia `json:"audio"`
	Document  *whatsAppMedia `json:"document"`
	Sticker   *whatsAppMedia `json:"sticker"`
	Button    *struct {
		Text string `json:"text"`
	} `json:"button"`
	Interactive *struct {
		ButtonReply *whatsAppReply `json:"button_reply"`
		ListReply   *whatsAppReply `json:"list_reply"`
	} `json:"interactive"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppMedia struct {
	ID      string `json:"id"`
	Caption string `json:"caption"`
}

type whatsAppReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func normalizeWhatsApp(raw []byte) ([]channel.InboundEvent, error) {
	var payload whatsAppPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, malformed(channel.TypeWhatsApp, "invalid json", err)
	}
	if payload.Object != "whatsapp_business_account" {
		return nil, malformed(channel.TypeWhatsApp, "unexpected object "+quote(payload.Object), nil)
	}

	var events []channel.InboundEvent
	skipped := 0
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			account := value.Metadata.PhoneNumberID

			for _, m := range value.Messages {
				ev, ok := whatsAppInbound(account, m, false)
				if !ok {
					skipped++
					continue
				}
				if ev.Text == "" && len(ev.MediaRefs) == 0 {
					// reactions, locations and system notices carry nothing to answer
					continue
				}
				ev.CustomerName = contactName(value, m.From)
				events = append(events, ev)
			}

			for _, m := range value.MessageEchoes {
				ev, ok := whatsAppInbound(account, m, true)
				if !ok {
					skipped++
					continue
				}
				events = append(events, ev)
			}
		}
	}

	if skipped > 0 {
		return events, &NormalizationError{
			ChannelType: channel.TypeWhatsApp,
			Reason:      "message events without ids",
			Skipped:     skipped,
		}
	}
	return events, nil
}

func whatsAppInbound(account string, m whatsAppMessage, echo bool) (channel.InboundEvent, bool) {
	customer, sender := m.From, m.From
	if echo {
		// echoes are sent by the business number itself
		customer, sender = m.To, account
	}
	if account == "" || m.ID == "" || customer == "" {
		return channel.InboundEvent{}, false
	}

	text, refs := whatsAppBody(m)
	return channel.InboundEvent{
		ChannelType:        channel.TypeWhatsApp,
		AccountExternalID:  account,
		CustomerExternalID: customer,
		SenderExternalID:   sender,
		ProviderMessageID:  m.ID,
		Timestamp:          timestampOrNow(parseUnixSeconds(m.Timestamp)),
		Text:               strings.TrimSpace(text),
		MediaRefs:          refs,
		IsEcho:             echo,
	}, true
}

func whatsAppBody(m whatsAppMessage) (string, []string) {
	var text string
	var refs []string

	if m.Text != nil {
		text = m.Text.Body
	}
	for _, media := range []*whatsAppMedia{m.Image, m.Video, m.Audio, m.Document, m.Sticker} {
		if media == nil {
			continue
		}
		if media.ID != "" {
			refs = append(refs, media.ID)
		}
		if text == "" {
			text = media.Caption
		}
	}
	if m.Button != nil && text == "" {
		text = m.Button.Text
	}
	if m.Interactive != nil && text == "" {
		switch {
		case m.Interactive.ButtonReply != nil:
			text = m.Interactive.ButtonReply.Title
		case m.Interactive.ListReply != nil:
			text = m.Interactive.ListReply.Title
		}
	}
	return text, refs
}

func contactName(value whatsAppValue, waID string) string {
	for _, c := range value.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	if len(value.Contacts) == 1 {
		return value.Contacts[0].Profile.Name
	}
	return ""
}

func parseUnixSeconds(s string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
