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
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// Provider limits, counted in characters (runes).
const (
	MaxButtonTitle   = 20
	MaxHeaderText    = 60
	MaxBodyText      = 1024
	MaxFooterText    = 60
	MaxRowTitle      = 24
	MaxRowDesc       = 72
	MaxSectionTitle  = 24
	MaxListButton    = 20
	MaxTextBody      = 4096
	MaxButtons       = 3
	MaxListRows      = 10
	messagingProduct = "whatsapp"
)

type Button struct {
	ID    string
	Title string
}

// ButtonMessage is an interactive message with up to three reply buttons.
type ButtonMessage struct {
	Header  string
	Body    string
	Footer  string
	Buttons []Button
}

type ListRow struct {
	ID          string
	Title       string
	Description string
}

type ListSection struct {
	Title string
	Rows  []ListRow
}

// ListMessage is an interactive menu opened by ButtonText.
type ListMessage struct {
	Header     string
	Body       string
	Footer     string
	ButtonText string
	Sections   []ListSection
}

// Truncate cuts s to at most max characters. Applying it twice is the same as applying it once.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Normalize applies the provider size policy to a button message.
func (m ButtonMessage) Normalize() ButtonMessage {
	out := ButtonMessage{
		Header: Truncate(m.Header, MaxHeaderText),
		Body:   Truncate(m.Body, MaxBodyText),
		Footer: Truncate(m.Footer, MaxFooterText),
	}

	buttons := m.Buttons
	if len(buttons) > MaxButtons {
		logrus.WithFields(logrus.Fields{
			"buttons": len(buttons),
			"max":     MaxButtons,
		}).Warn("too many reply buttons, extra buttons dropped")
		buttons = buttons[:MaxButtons]
	}
	out.Buttons = make([]Button, len(buttons))
	for i, b := range buttons {
		out.Buttons[i] = Button{ID: b.ID, Title: Truncate(b.Title, MaxButtonTitle)}
	}
	return out
}

// Normalize applies the provider size policy to a list message. The row limit
// counts rows across all sections; sections left without rows are dropped.
func (m ListMessage) Normalize() ListMessage {
	out := ListMessage{
		Header:     Truncate(m.Header, MaxHeaderText),
		Body:       Truncate(m.Body, MaxBodyText),
		Footer:     Truncate(m.Footer, MaxFooterText),
		ButtonText: Truncate(m.ButtonText, MaxListButton),
	}

	total := 0
	for _, s := range m.Sections {
		total += len(s.Rows)
	}
	if total > MaxListRows {
		logrus.WithFields(logrus.Fields{
			"rows": total,
			"max":  MaxListRows,
		}).Warn("too many list rows, extra rows dropped")
	}

	remaining := MaxListRows
	for _, s := range m.Sections {
		if remaining == 0 {
			break
		}
		rows := s.Rows
		if len(rows) > remaining {
			rows = rows[:remaining]
		}
		if len(rows) == 0 {
			continue
		}
		section := ListSection{Title: Truncate(s.Title, MaxSectionTitle), Rows: make([]ListRow, len(rows))}
		for i, r := range rows {
			section.Rows[i] = ListRow{
				ID:          r.ID,
				Title:       Truncate(r.Title, MaxRowTitle),
				Description: Truncate(r.Description, MaxRowDesc),
			}
		}
		out.Sections = append(out.Sections, section)
		remaining -= len(rows)
	}
	return out
}

// Wire shapes of the Cloud API messages endpoint.

type wireText struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

type wireTextObject struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text"`
}

type wireReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type wireButton struct {
	Type  string    `json:"type"`
	Reply wireReply `json:"reply"`
}

type wireRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type wireSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []wireRow `json:"rows"`
}

type wireAction struct {
	Button   string        `json:"button,omitempty"`
	Buttons  []wireButton  `json:"buttons,omitempty"`
	Sections []wireSection `json:"sections,omitempty"`
}

type wireInteractive struct {
	Type   string          `json:"type"`
	Header *wireTextObject `json:"header,omitempty"`
	Body   wireTextObject  `json:"body"`
	Footer *wireTextObject `json:"footer,omitempty"`
	Action wireAction      `json:"action"`
}

type wireMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	RecipientType    string           `json:"recipient_type"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             *wireText        `json:"text,omitempty"`
	Interactive      *wireInteractive `json:"interactive,omitempty"`
}

type wireReadReceipt struct {
	MessagingProduct string `json:"messaging_product"`
	Status           string `json:"status"`
	MessageID        string `json:"message_id"`
}

func optionalText(s, typ string) *wireTextObject {
	if s == "" {
		return nil
	}
	return &wireTextObject{Type: typ, Text: s}
}

// TextPayload renders the exact request body for a text message.
func TextPayload(to, body string) (json.RawMessage, error) {
	return json.Marshal(wireMessage{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &wireText{Body: Truncate(body, MaxTextBody)},
	})
}

// ButtonsPayload renders the exact request body for a reply-button message.
// The message is expected to be normalized already.
func ButtonsPayload(to string, m ButtonMessage) (json.RawMessage, error) {
	buttons := make([]wireButton, len(m.Buttons))
	for i, b := range m.Buttons {
		buttons[i] = wireButton{Type: "reply", Reply: wireReply{ID: b.ID, Title: b.Title}}
	}
	return json.Marshal(wireMessage{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &wireInteractive{
			Type:   "button",
			Header: optionalText(m.Header, "text"),
			Body:   wireTextObject{Text: m.Body},
			Footer: optionalText(m.Footer, ""),
			Action: wireAction{Buttons: buttons},
		},
	})
}

// ListPayload renders the exact request body for a list message.
// The message is expected to be normalized already.
func ListPayload(to string, m ListMessage) (json.RawMessage, error) {
	sections := make([]wireSection, len(m.Sections))
	for i, s := range m.Sections {
		rows := make([]wireRow, len(s.Rows))
		for j, r := range s.Rows {
			rows[j] = wireRow{ID: r.ID, Title: r.Title, Description: r.Description}
		}
		sections[i] = wireSection{Title: s.Title, Rows: rows}
	}
	return json.Marshal(wireMessage{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &wireInteractive{
			Type:   "list",
			Header: optionalText(m.Header, "text"),
			Body:   wireTextObject{Text: m.Body},
			Footer: optionalText(m.Footer, ""),
			Action: wireAction{Button: m.ButtonText, Sections: sections},
		},
	})
}

// RenderButtons is the plain-text form stored alongside the wire payload.
func RenderButtons(m ButtonMessage) string {
	out := m.Body
	for _, b := range m.Buttons {
		out += "\n[" + b.Title + "]"
	}
	return out
}

// RenderList is the plain-text form stored alongside the wire payload.
func RenderList(m ListMessage) string {
	out := m.Body
	for _, s := range m.Sections {
		for _, r := range s.Rows {
			out += "\n- " + r.Title
		}
	}
	return out
}
