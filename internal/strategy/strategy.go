package strategy

// ActionKind distinguishes the outcome of applying a Strategy.
type ActionKind int

const (
	// ActionNone means the conversation needed no adjustment.
	ActionNone ActionKind = iota
	// ActionTrimmed means messages were removed outright.
	ActionTrimmed
	// ActionNeedsSummarisation means the caller must summarise the
	// returned messages (e.g. via an LLM) and re-insert the result with
	// InsertSummary.
	ActionNeedsSummarisation
)

// Action is the result of applying a Strategy to a conversation.
type Action struct {
	Kind     ActionKind
	Count    int       // valid when Kind == ActionTrimmed
	Messages []Message // valid when Kind == ActionNeedsSummarisation
}

// Strategy bounds a conversation's size, in place.
type Strategy interface {
	Apply(conversation *Conversation) Action
}

// Full never proactively trims; the caller relies on CompactToBudget for hard limits.
type Full struct{}

func (Full) Apply(*Conversation) Action { return Action{Kind: ActionNone} }

// Summarising triggers summarisation once the conversation's estimated
// token total exceeds Threshold, collecting oldest-first non-system
// messages until their combined estimate reaches (current - Target).
type Summarising struct {
	Threshold uint32
	Target    uint32
}

func (s Summarising) Apply(conversation *Conversation) Action {
	current := conversation.EstimateTokens()
	if current <= s.Threshold {
		return Action{Kind: ActionNone}
	}

	tokensToRemove := uint32(0)
	if current > s.Target {
		tokensToRemove = current - s.Target
	}

	var removedTokens uint32
	var toSummarise []Message
	var indicesToRemove []int

	for i, msg := range conversation.Messages {
		if msg.Role == RoleSystem {
			continue
		}
		if removedTokens >= tokensToRemove {
			break
		}
		toSummarise = append(toSummarise, msg)
		indicesToRemove = append(indicesToRemove, i)
		removedTokens += msg.EstimateTokens()
	}

	if len(toSummarise) == 0 {
		return Action{Kind: ActionNone}
	}

	for i := len(indicesToRemove) - 1; i >= 0; i-- {
		idx := indicesToRemove[i]
		conversation.Messages = append(conversation.Messages[:idx], conversation.Messages[idx+1:]...)
	}

	return Action{Kind: ActionNeedsSummarisation, Messages: toSummarise}
}

// Windowed keeps at most Size non-system messages, dropping the oldest
// ones that fall after the leading system-message prefix.
type Windowed struct {
	Size int
}

func (w Windowed) Apply(conversation *Conversation) Action {
	systemCount := conversation.leadingSystemCount()
	nonSystemCount := len(conversation.Messages) - systemCount
	if nonSystemCount <= w.Size {
		return Action{Kind: ActionNone}
	}

	removeCount := nonSystemCount - w.Size
	conversation.Messages = append(
		conversation.Messages[:systemCount:systemCount],
		conversation.Messages[systemCount+removeCount:]...,
	)

	return Action{Kind: ActionTrimmed, Count: removeCount}
}

// InsertSummary inserts a system message carrying summary immediately
// after the conversation's leading system-message prefix.
func InsertSummary(conversation *Conversation, summary string) {
	pos := conversation.leadingSystemCount()
	summaryMsg := NewSystemMessage("[Previous conversation summary]\n" + summary)

	conversation.Messages = append(conversation.Messages, Message{})
	copy(conversation.Messages[pos+1:], conversation.Messages[pos:])
	conversation.Messages[pos] = summaryMsg
}

// CompactToBudget removes oldest non-system messages until the
// conversation's estimated tokens fit within maxTokens, or only system
// messages remain. Returns the number of messages removed.
func CompactToBudget(conversation *Conversation, maxTokens uint32) int {
	removed := 0
	current := conversation.EstimateTokens()

	for current > maxTokens && len(conversation.Messages) > 0 {
		idx := -1
		for i, msg := range conversation.Messages {
			if msg.Role != RoleSystem {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}

		msgTokens := conversation.Messages[idx].EstimateTokens()
		conversation.Messages = append(conversation.Messages[:idx], conversation.Messages[idx+1:]...)
		if msgTokens > current {
			current = 0
		} else {
			current -= msgTokens
		}
		removed++
	}

	return removed
}
