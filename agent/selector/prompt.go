package selector

import (
	"strings"

	"github.com/lachopopov/multiagent-system-demo/agent/participant"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
)

// Template placeholders.
const (
	PlaceholderRoles        = "{roles}"
	PlaceholderHistory      = "{history}"
	PlaceholderParticipants = "{participants}"
	PlaceholderPolicy       = "{policy}"
)

// DefaultTemplate is used when no template is configured.
const DefaultTemplate = `You are selecting the next participant in a group conversation.

Participants and when to use them:
{roles}

Current conversation:
{history}

Select exactly one participant from {participants} to perform the next step.
{policy}
Reply with only the participant name.
`

const repromptTemplate = `Your previous answer %q is not a valid participant name.
Valid names are: %s.
Reply with exactly one of these names and nothing else.`

// PromptInput is the context rendered into a selection prompt.
type PromptInput struct {
	Roles      []participant.Description
	History    transcript.Snapshot
	Candidates []string
	Policy     string
}

// RenderPrompt substitutes the placeholders of tmpl.
func RenderPrompt(tmpl string, in PromptInput) string {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	r := strings.NewReplacer(
		PlaceholderRoles, renderRoles(in.Roles),
		PlaceholderHistory, renderHistory(in.History),
		PlaceholderParticipants, renderNames(in.Candidates),
		PlaceholderPolicy, in.Policy,
	)
	return r.Replace(tmpl)
}

func renderRoles(roles []participant.Description) string {
	lines := make([]string, 0, len(roles))
	for _, d := range roles {
		lines = append(lines, d.Name+": "+d.Description)
	}
	return strings.Join(lines, "\n")
}

func renderHistory(h transcript.Snapshot) string {
	if h.Empty() {
		return "(no messages yet)"
	}
	var b strings.Builder
	for i, m := range h.Messages() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Sender)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

func renderNames(names []string) string {
	return "[" + strings.Join(names, ", ") + "]"
}
