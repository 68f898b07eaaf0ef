package reply

import (
	"bytes"
	"io"
	stdmail "net/mail"
	"strings"

	gomail "github.com/emersion/go-message/mail"
)

const maxBodyBytes = 1 << 20

// Envelope is the subset of an inbound message the processor acts on.
type Envelope struct {
	MessageID  string
	From       string
	Subject    string
	Body       string
	References string
}

// ParseEnvelope extracts headers and the reply-relevant body from a raw
// RFC 822 payload. Multipart messages contribute their first text/plain
// part; anything else falls back to the raw payload body. Parsing is
// best-effort: a mangled message still yields an envelope so the caller
// can decide what to do with it.
func ParseEnvelope(raw []byte) Envelope {
	var env Envelope

	reader, err := gomail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return legacyEnvelope(raw)
	}
	defer reader.Close()

	header := reader.Header
	if subject, err := header.Subject(); err == nil {
		env.Subject = subject
	} else {
		env.Subject = header.Get("Subject")
	}
	if list, err := header.AddressList("From"); err == nil && len(list) > 0 {
		env.From = strings.TrimSpace(list[0].Address)
	} else {
		env.From = strings.TrimSpace(header.Get("From"))
	}
	env.MessageID = normalizeMessageID(header.Get("Message-Id"))
	env.References = strings.TrimSpace(header.Get("References"))

	env.Body = firstPlainTextPart(reader)
	if env.Body == "" {
		env.Body = fallbackBody(raw)
	}
	return env
}

func firstPlainTextPart(reader *gomail.Reader) string {
	for {
		part, err := reader.NextPart()
		if err == io.EOF || part == nil {
			return ""
		}
		if err != nil {
			return ""
		}
		header, ok := part.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		mediaType, _, err := header.ContentType()
		if err == nil && mediaType != "" && mediaType != "text/plain" {
			continue
		}
		body, err := io.ReadAll(io.LimitReader(part.Body, maxBodyBytes))
		if err != nil {
			return ""
		}
		return string(body)
	}
}

func legacyEnvelope(raw []byte) Envelope {
	var env Envelope
	msg, err := stdmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		env.Body = string(raw)
		return env
	}
	env.Subject = msg.Header.Get("Subject")
	env.MessageID = normalizeMessageID(msg.Header.Get("Message-Id"))
	env.References = strings.TrimSpace(msg.Header.Get("References"))
	if list, err := msg.Header.AddressList("From"); err == nil && len(list) > 0 {
		env.From = list[0].Address
	} else {
		env.From = strings.TrimSpace(msg.Header.Get("From"))
	}
	body, err := io.ReadAll(io.LimitReader(msg.Body, maxBodyBytes))
	if err == nil {
		env.Body = string(body)
	}
	return env
}

func fallbackBody(raw []byte) string {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return string(raw[idx+4:])
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return string(raw[idx+2:])
	}
	return string(raw)
}

func normalizeMessageID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "<") {
		value = "<" + value
	}
	if !strings.HasSuffix(value, ">") {
		value = value + ">"
	}
	return value
}

// ReplySubject prefixes a subject for the outgoing reply. Prefixing is
// idempotent: any stack of existing "Re:" markers collapses to one.
func ReplySubject(original string) string {
	base := strings.TrimSpace(original)
	for {
		lower := strings.ToLower(base)
		if !strings.HasPrefix(lower, "re:") {
			break
		}
		base = strings.TrimSpace(base[len("re:"):])
	}
	if base == "" {
		return "Re:"
	}
	return "Re: " + base
}

// ReplyReferences extends the original References chain with the message
// being answered, preserving existing threading.
func ReplyReferences(originalRefs, originalMessageID string) string {
	refs := strings.TrimSpace(originalRefs)
	if originalMessageID == "" {
		return refs
	}
	if refs == "" {
		return originalMessageID
	}
	if strings.Contains(refs, originalMessageID) {
		return refs
	}
	return refs + " " + originalMessageID
}
