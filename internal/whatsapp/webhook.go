/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package whatsapp

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/blnkfinance/comanda/model"
)

// ErrVerificationFailed is returned when a subscription challenge does not match.
var ErrVerificationFailed = errors.New("webhook verification failed")

type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []webhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type webhookMedia struct {
	ID string `json:"id"`
}

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string     `json:"type"`
		ButtonReply *wireReply `json:"button_reply"`
		ListReply   *wireReply `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Image    *webhookMedia `json:"image"`
	Document *webhookMedia `json:"document"`
	Audio    *webhookMedia `json:"audio"`
}

// DecodeWebhook turns a provider notification into inbound messages. Status
// callbacks carry no messages and decode to an empty slice.
func DecodeWebhook(body []byte) ([]model.InboundMessage, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	var out []model.InboundMessage
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			names := make(map[string]string, len(change.Value.Contacts))
			for _, c := range change.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range change.Value.Messages {
				in := toInbound(m)
				in.ProfileName = names[m.From]
				out = append(out, in)
			}
		}
	}
	return out, nil
}

func toInbound(m webhookMessage) model.InboundMessage {
	in := model.InboundMessage{
		ProviderMessageID: m.ID,
		From:              m.From,
		Type:              model.MessageOther,
	}
	if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
		in.Timestamp = time.Unix(secs, 0).UTC()
	}

	switch {
	case m.Type == "text" && m.Text != nil:
		in.Type = model.MessageText
		in.Content = m.Text.Body
	case m.Type == "interactive" && m.Interactive != nil:
		in.Type = model.MessageInteractive
		if m.Interactive.ButtonReply != nil {
			in.Content = m.Interactive.ButtonReply.ID
		} else if m.Interactive.ListReply != nil {
			in.Content = m.Interactive.ListReply.ID
		}
	case m.Type == "button" && m.Button != nil:
		in.Type = model.MessageInteractive
		in.Content = m.Button.Payload
	case m.Image != nil:
		in.Content = m.Image.ID
	case m.Document != nil:
		in.Content = m.Document.ID
	case m.Audio != nil:
		in.Content = m.Audio.ID
	}
	return in
}

// VerifySubscription answers the provider's GET handshake.
func VerifySubscription(mode, token, challenge, expectedToken string) (string, error) {
	if mode != "subscribe" || expectedToken == "" || token != expectedToken {
		return "", ErrVerificationFailed
	}
	return challenge, nil
}
