package chatcmder

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/papercomputeco/parlor/pkg/chat"
	"github.com/papercomputeco/parlor/pkg/cliui"
	"github.com/papercomputeco/parlor/pkg/export"
	"github.com/papercomputeco/parlor/pkg/session"
)

// turnView prints the events of one turn. In raw mode the answer is
// streamed as it grows; otherwise only a progress marker is shown and the
// final answer is rendered as markdown.
type turnView struct {
	out          io.Writer
	conversation string
	raw          bool
	width        int

	started bool
	shown   string
}

func newTurnView(out io.Writer, conversation string, raw bool, width int) *turnView {
	return &turnView{out: out, conversation: conversation, raw: raw, width: width}
}

// handle prints u. It reports true once the turn is over; the error is the
// turn's failure, if any.
func (v *turnView) handle(u update) (bool, error) {
	ev := u.Event
	if ev == nil || ev.Conversation != v.conversation {
		return false, nil
	}

	switch ev.Type {
	case session.EventMessageUpdated:
		if ev.Message != nil {
			v.progress(ev.Message.Content)
		}
		return false, nil

	case session.EventMessageFinalized:
		if ev.Message == nil {
			return true, nil
		}
		v.final(*ev.Message)
		return true, nil

	case session.EventTurnError:
		if v.started {
			fmt.Fprintln(v.out)
		}
		return true, errors.New(ev.Error)
	}
	return false, nil
}

func (v *turnView) begin() {
	if v.started {
		return
	}
	v.started = true
	fmt.Fprint(v.out, assistantPromptStyle.Render("assistant> "))
}

func (v *turnView) progress(content string) {
	v.begin()
	if !v.raw {
		return
	}
	v.write(content)
}

// write prints what content adds to the text shown so far. Snapshots are
// cumulative; one that does not extend the shown text is printed whole on a
// new line.
func (v *turnView) write(content string) {
	if rest, ok := strings.CutPrefix(content, v.shown); ok {
		fmt.Fprint(v.out, rest)
	} else {
		fmt.Fprint(v.out, "\n"+content)
	}
	v.shown = content
}

func (v *turnView) final(msg chat.Message) {
	v.begin()

	if v.raw {
		v.write(msg.Content)
		fmt.Fprintln(v.out)
	} else {
		rendered, err := cliui.RenderMarkdownWidth(msg.Content, v.width)
		if err != nil {
			rendered = msg.Content + "\n"
		}
		fmt.Fprint(v.out, "\n"+rendered)
	}

	if parts := export.StatParts(msg); len(parts) > 0 {
		fmt.Fprintf(v.out, "  %s\n", cliui.DimStyle.Render(strings.Join(parts, " · ")))
	}
	fmt.Fprintln(v.out)
}
