// Package chatwire holds the wire shapes of the Meta-Cloud-style chat
// webhook: the nested ingress envelope and the outbound message payloads.
// The engine owns only this adapter; transport, auth and retries live with
// the chat provider integration behind the dispatch.Chat port.
package chatwire

// WebhookPayload is the ingress envelope. Each entry change carries either
// delivery statuses or inbound messages.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups changes for one account.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one webhook notification.
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the actual content of a change.
type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Statuses         []Status  `json:"statuses,omitempty"`
	Messages         []Message `json:"messages,omitempty"`
	Contacts         []Contact `json:"contacts,omitempty"`
}

// Status is a delivery receipt for an outbound message.
type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// Contact identifies the sender of inbound messages.
type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// Message is one inbound message: free text, an interactive button reply,
// or a template quick-reply button.
type Message struct {
	From        string       `json:"from"`
	ID          string       `json:"id"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *Text        `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
	Button      *Button      `json:"button,omitempty"`
}

// Text is the body of a plain text message.
type Text struct {
	Body string `json:"body"`
}

// Interactive is a button-reply interaction.
type Interactive struct {
	Type        string       `json:"type"`
	ButtonReply *ButtonReply `json:"button_reply,omitempty"`
}

// ButtonReply identifies which interactive button was tapped.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Button is a template quick-reply button press.
type Button struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// Inbound is one normalized inbound message, the unit the session state
// machine consumes.
type Inbound struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

// ExtractInbound flattens the webhook envelope into normalized inbound
// messages, reducing button presses to their visible text. Delivery
// statuses are dropped; they carry no conversational content.
func ExtractInbound(payload WebhookPayload) []Inbound {
	var out []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				body := ""
				switch {
				case msg.Text != nil:
					body = msg.Text.Body
				case msg.Interactive != nil && msg.Interactive.ButtonReply != nil:
					body = msg.Interactive.ButtonReply.Title
				case msg.Button != nil:
					body = msg.Button.Text
				}
				if msg.From == "" || body == "" {
					continue
				}
				out = append(out, Inbound{Phone: msg.From, Body: body})
			}
		}
	}
	return out
}

// Outbound payloads.

// TextPayload is a plain outbound text message.
type TextPayload struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             Text   `json:"text"`
}

// NewTextPayload builds a text payload addressed to a phone.
func NewTextPayload(to, body string) TextPayload {
	return TextPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             Text{Body: body},
	}
}

// TemplatePayload is an outbound template message.
type TemplatePayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         Template `json:"template"`
}

// Template names the pre-approved template and its parameters.
type Template struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

// Language selects the template locale.
type Language struct {
	Code string `json:"code"`
}

// Component is one template section with its parameter values.
type Component struct {
	Type       string      `json:"type"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Parameter is a single template substitution value.
type Parameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewTemplatePayload builds a template payload with body text parameters
// in order.
func NewTemplatePayload(to, name, languageCode string, params []string) TemplatePayload {
	payload := TemplatePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: Template{
			Name:     name,
			Language: Language{Code: languageCode},
		},
	}
	if len(params) > 0 {
		component := Component{Type: "body"}
		for _, p := range params {
			component.Parameters = append(component.Parameters, Parameter{Type: "text", Text: p})
		}
		payload.Template.Components = []Component{component}
	}
	return payload
}
