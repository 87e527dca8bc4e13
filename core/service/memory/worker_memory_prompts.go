package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

const (
	maxDailyEmails = 50
	dateLayout     = "2006-01-02"
)

const dailyReviewPrompt = `You are an AI assistant creating learnings to improve future email processing decisions. Your goal is NOT to summarize what happened, but to extract insights that will help process emails better tomorrow.

Analyze the emails and their categorizations, then create a memory focused on:

**Key learnings for tomorrow:**
- Specific rules to apply (e.g., "emails from @company.com with 'invoice' should get Urgent label")
- Sender patterns to remember
- Content patterns that indicate specific labels

**What worked well:**
- Categorization decisions that seem correct and should be repeated
- Patterns successfully identified (e.g., "newsletters from X always get archived")
- Sender behaviors correctly recognized

**What to improve:**
- Emails that may have been miscategorized and why
- Patterns that were missed or incorrectly applied
- Better ways to handle similar emails in the future

IMPORTANT: Keep your response CONCISE - aim for around 100 words maximum. Be specific and actionable. Focus only on the most important insights that will directly improve future email processing. Format as concise bullet points.`

const evolvePromptTemplate = `You are an AI assistant evolving a %s email processing memory. Your task is to UPDATE the existing memory by incorporating new insights from recent lower-level memories.

DO NOT write a new memory from scratch. Instead:

**Reinforce patterns:**
- Keep and strengthen insights that are still relevant and being validated by new data
- Note when patterns continue or become more pronounced

**Amend differences:**
- Update or refine insights when new data shows changes in patterns
- Add new learnings that weren't in the previous memory
- Remove or de-emphasize insights that are no longer relevant

**Maintain continuity:**
- Build on the existing memory's structure and insights
- Show evolution over time rather than replacement
- Keep the most valuable long-term learnings

IMPORTANT: Keep your response concise - aim for around 400 words maximum. Focus only on the most significant changes and patterns. The goal is an EVOLVED memory that's better than the previous one, not a brand new memory. Format as bullet points.`

const firstPromptTemplate = `You are an AI assistant creating the first %s email processing memory. Review the provided memories and create insights focused on:

1. Identifying overarching patterns and trends
2. Highlighting important behavioral patterns
3. Noting recurring themes
4. Providing strategic insights for email management
5. Suggesting process improvements

IMPORTANT: Keep your response concise - aim for around 800 words maximum. Focus on the most important actionable patterns. Format as bullet points.`

// dailySystemPrompt appends the label list to the built-in prompt. An
// override is used as is.
func dailySystemPrompt(override string, catalog domain.LabelCatalog) string {
	if override != "" {
		return override
	}
	if len(catalog) == 0 {
		return dailyReviewPrompt
	}

	lines := make([]string, 0, len(catalog))
	for _, l := range catalog {
		if l.Description != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", l.Name, l.Description))
		} else {
			lines = append(lines, "- "+l.Name)
		}
	}
	return dailyReviewPrompt + "\n\nAvailable labels (ONLY reference these exact label names in your learnings):\n" + strings.Join(lines, "\n")
}

// dailyUserPrompt lists up to 50 records and puts human feedback in its own
// section, ahead of the closing instructions.
func dailyUserPrompt(msgs []*domain.ProcessedMessage) string {
	var summaries, feedback []string
	for i, m := range msgs {
		if i >= maxDailyEmails {
			break
		}
		line := fmt.Sprintf("- From: %s | Subject: %s | Slug: %s | Labels: %s | Archived: %v | Keywords: %s",
			m.FromAddress, m.Subject, m.Slug, jsonList(m.LabelsApplied), m.BypassedInbox, jsonList(m.Keywords))
		if m.Reasoning != "" {
			line += " | AI Reasoning: " + m.Reasoning
		}
		summaries = append(summaries, line)
	}
	if len(msgs) > maxDailyEmails {
		summaries = append(summaries, fmt.Sprintf("... and %d more emails", len(msgs)-maxDailyEmails))
	}

	// feedback is collected from every record, not only the listed ones
	for _, m := range msgs {
		if strings.TrimSpace(m.HumanFeedback) != "" {
			feedback = append(feedback, fmt.Sprintf("- Email from %s (Subject: %s): %s", m.FromAddress, m.Subject, m.HumanFeedback))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Review these %d processed emails and extract learnings to improve future email handling:\n\n", len(msgs))
	b.WriteString(strings.Join(summaries, "\n"))
	if len(feedback) > 0 {
		b.WriteString("\n\n**IMPORTANT - HUMAN FEEDBACK (PRIORITIZE THESE):**\n")
		b.WriteString("The human provided explicit feedback on these emails. These instructions are CRITICAL and must be prominently included in your memory:\n\n")
		b.WriteString(strings.Join(feedback, "\n"))
		b.WriteString("\n\nThese human corrections should be given highest priority in your learnings.\n\n")
	}
	b.WriteString("\nFocus on creating actionable insights that will help process similar emails better in the future. What patterns should be reinforced? What should be done differently?")
	return b.String()
}

func consolidationSystemPrompt(override string, tier domain.Tier, prior *domain.Memory) string {
	if override != "" {
		return override
	}
	if prior != nil {
		return fmt.Sprintf(evolvePromptTemplate, tier)
	}
	return fmt.Sprintf(firstPromptTemplate, tier)
}

func consolidationUserPrompt(tier domain.Tier, prior *domain.Memory, sources []*domain.Memory, loc *time.Location) string {
	parts := make([]string, 0, len(sources))
	for i, m := range sources {
		parts = append(parts, fmt.Sprintf("New Memory %d (%s to %s):\n%s",
			i+1, m.StartDate.In(loc).Format(dateLayout), m.EndDate.In(loc).Format(dateLayout), m.Content))
	}
	joined := strings.Join(parts, "\n\n")

	if prior == nil {
		return fmt.Sprintf("Create the first %s memory by consolidating these %d memories:\n\n%s\n\nProvide a concise %s summary with key patterns and strategic insights.",
			tier, len(sources), joined, tier)
	}

	return fmt.Sprintf(`**CURRENT %s MEMORY (to be evolved):**
Period: %s to %s
%s

**NEW INSIGHTS FROM RECENT MEMORIES (%d new):**
%s

Task: Evolve the current memory by:
1. Reinforcing patterns that continue in the new memories
2. Updating insights where new data shows changes
3. Adding new learnings not present in current memory
4. Removing outdated insights

Output an evolved %s memory that builds on the current one.`,
		strings.ToUpper(string(tier)),
		prior.StartDate.In(loc).Format(dateLayout), prior.EndDate.In(loc).Format(dateLayout),
		prior.Content, len(sources), joined, tier)
}

// jsonList renders a string slice the way a JSON array looks.
func jsonList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

// renderContext formats memories for the decision stage.
func renderContext(memories []*domain.Memory) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Past learnings from email processing:\n\n")
	for _, m := range memories {
		fmt.Fprintf(&b, "**%s Memory:**\n%s\n\n", strings.ToUpper(string(m.Tier)), m.Content)
	}
	return b.String()
}
