package service

import "strings"

// Conversation keeps a bounded transcript of question/answer exchanges.
// It exists for display; history is never fed back into the model.
type Conversation struct {
	exchanges    []exchange
	maxExchanges int
}

type exchange struct {
	question string
	answer   string
}

func NewConversation(maxExchanges int) *Conversation {
	if maxExchanges <= 0 {
		maxExchanges = 10
	}
	return &Conversation{maxExchanges: maxExchanges}
}

// AddExchange records a question/answer pair, dropping the oldest pair
// once the bound is exceeded.
func (c *Conversation) AddExchange(question, answer string) {
	c.exchanges = append(c.exchanges, exchange{question: question, answer: answer})
	if len(c.exchanges) > c.maxExchanges {
		c.exchanges = c.exchanges[len(c.exchanges)-c.maxExchanges:]
	}
}

func (c *Conversation) Clear() { c.exchanges = nil }

func (c *Conversation) Len() int { return len(c.exchanges) }

// Formatted returns the transcript as Q:/A: blocks.
func (c *Conversation) Formatted() string {
	parts := make([]string, 0, len(c.exchanges))
	for _, e := range c.exchanges {
		parts = append(parts, "Q: "+e.question+"\nA: "+e.answer)
	}
	return strings.Join(parts, "\n\n")
}
