package chat

import "strings"

// maxVisibleRows caps how tall the compose affordance grows; content with
// more lines scrolls inside the box instead.
const maxVisibleRows = 5

// Compose is the compose-box state machine: the accumulated text and its
// derived line count. It is not shared between connections; each input
// channel owns its own instance.
type Compose struct {
	text  string
	lines int
}

// NewCompose returns an empty compose box.
func NewCompose() *Compose {
	return &Compose{lines: 1}
}

// Text returns the current compose text.
func (c *Compose) Text() string {
	return c.text
}

// Lines returns the newline-delimited segment count, at least 1.
func (c *Compose) Lines() int {
	return c.lines
}

// VisibleRows returns the row count the input affordance should render.
func (c *Compose) VisibleRows() int {
	if c.lines > maxVisibleRows {
		return maxVisibleRows
	}
	return c.lines
}

// Overflow reports whether the content exceeds the visible height.
func (c *Compose) Overflow() bool {
	return c.lines > maxVisibleRows
}

// SetText replaces the compose text and recomputes the line count.
func (c *Compose) SetText(text string) {
	c.text = text
	c.lines = countLines(text)
}

// PressEnter handles the Enter key. With shift held a literal newline is
// inserted. A plain Enter clears the box synchronously and hands back the
// pre-clear text for dispatch; the clear must not wait for the dispatch to
// resolve. Validity of the text (blank utterances) is the dispatcher's
// concern, not the compose box's.
func (c *Compose) PressEnter(shift bool) (string, bool) {
	if shift {
		c.SetText(c.text + "\n")
		return "", false
	}
	text := c.text
	c.reset()
	return text, true
}

// Send handles the explicit send action (the arrow button). An empty box
// is a no-op; otherwise behaves like a plain Enter.
func (c *Compose) Send() (string, bool) {
	if c.text == "" {
		return "", false
	}
	text := c.text
	c.reset()
	return text, true
}

func (c *Compose) reset() {
	c.text = ""
	c.lines = 1
}

func countLines(s string) int {
	if s == "" {
		return 1
	}
	return strings.Count(s, "\n") + 1
}
