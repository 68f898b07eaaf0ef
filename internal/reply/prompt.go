package reply

import (
	"fmt"
	"strings"

	"github.com/replykit-io/replykit/internal/config"
)

// PromptContext carries everything the generator needs to draft a reply
// for one inbound message on behalf of one account.
type PromptContext struct {
	AccountEmail string
	DisplayName  string
	ServiceTag   string
	Subject      string
	Body         string
	Voice        config.VoiceConfig
}

const shortReplyWordLimit = 10

var acknowledgementWords = []string{
	"thanks", "thank", "ok", "okay", "great", "perfect", "sounds", "got", "received", "noted",
}

// isAcknowledgement reports whether the inbound body is a short
// courtesy reply that only needs a brief acknowledgement back.
func isAcknowledgement(body string) bool {
	words := strings.Fields(strings.ToLower(body))
	if len(words) == 0 || len(words) > shortReplyWordLimit {
		return false
	}
	for _, word := range words {
		word = strings.Trim(word, ".,!?")
		for _, ack := range acknowledgementWords {
			if word == ack {
				return true
			}
		}
	}
	return false
}

// cleanBody strips quoted history and forwarded-subject noise so the
// prompt only sees what the sender actually wrote.
func cleanBody(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "subject:") || strings.HasPrefix(lower, "from:") || strings.HasPrefix(lower, "sent:") {
			continue
		}
		if strings.HasPrefix(lower, "on ") && strings.HasSuffix(lower, "wrote:") {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// BuildPrompt renders the system and user prompts for one reply.
func BuildPrompt(pc PromptContext) (system, user string) {
	voice := pc.Voice
	tone := voice.Tone
	if tone == "" {
		tone = "professional"
	}
	name := pc.DisplayName
	if name == "" {
		name = pc.AccountEmail
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s, writing email replies on behalf of %s.", name, voice.CompanyName)
	if voice.CompanyDescription != "" {
		fmt.Fprintf(&sb, " %s.", strings.TrimSuffix(voice.CompanyDescription, "."))
	}
	if pc.ServiceTag != "" {
		fmt.Fprintf(&sb, " This mailbox handles %s.", pc.ServiceTag)
	} else if voice.Services != "" {
		fmt.Fprintf(&sb, " Services offered: %s.", voice.Services)
	}
	fmt.Fprintf(&sb, " Keep the tone %s. Write plain text only, no markdown.", tone)
	if voice.Signature != "" {
		fmt.Fprintf(&sb, " Sign off with:\n%s", voice.Signature)
	}
	system = sb.String()

	body := cleanBody(pc.Body)
	if isAcknowledgement(body) {
		user = fmt.Sprintf("The sender wrote a short acknowledgement:\n\n%s\n\nReply with one or two friendly sentences. Do not pitch anything.", body)
		return system, user
	}
	user = fmt.Sprintf("Reply to this email. Address what the sender asked and offer a concrete next step.\n\nSubject: %s\n\n%s", pc.Subject, body)
	return system, user
}
