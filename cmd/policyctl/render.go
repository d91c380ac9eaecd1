package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// render печатает Markdown. В режиме --plain текст уходит как есть.
func (c *cli) render(w io.Writer, markdown string) error {
	if c.plain {
		_, err := io.WriteString(w, markdown)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(c.width),
	)
	if err != nil {
		return fmt.Errorf("renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
