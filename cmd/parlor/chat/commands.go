package chatcmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/papercomputeco/parlor/pkg/cliui"
)

// command runs a slash command typed at the prompt.
func (c *chatCommander) command(ctx context.Context, line string) error {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	c.drain()

	switch name {
	case "help":
		fmt.Fprintf(c.out, "\n%s\n", helpText)
		return nil

	case "new":
		state, err := c.client.createConversation(ctx, c.state.ID, arg)
		if err != nil {
			return err
		}
		c.state = state
		c.done("Created " + cliui.NameStyle.Render(state.Current))
		return nil

	case "use":
		state, err := c.client.selectConversation(ctx, c.state.ID, arg)
		if err != nil {
			return err
		}
		c.state = state
		c.done("Switched to " + cliui.NameStyle.Render(state.Current))
		return nil

	case "delete":
		if arg == "" {
			arg = c.state.Current
		}
		out, err := c.client.deleteConversation(ctx, c.state.ID, arg)
		if err != nil {
			return err
		}
		c.state.Current = out.Current
		c.done(fmt.Sprintf("Deleted %s, now in %s", out.Deleted, cliui.NameStyle.Render(out.Current)))
		return nil

	case "list":
		state, err := c.client.getSession(ctx, c.state.ID)
		if err != nil {
			return err
		}
		c.state = state
		fmt.Fprintln(c.out)
		for _, conv := range state.Conversations {
			marker := " "
			if conv == state.Current {
				marker = "*"
			}
			fmt.Fprintf(c.out, "  %s %s\n", marker, conv)
		}
		fmt.Fprintln(c.out)
		return nil

	case "history":
		pairs, err := c.client.history(ctx, c.state.ID, c.state.Current)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out)
		if len(pairs) == 0 {
			fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("No questions yet."))
			return nil
		}
		for i, pair := range pairs {
			fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render(fmt.Sprintf("%d.", i+1)), pair[0])
			fmt.Fprintf(c.out, "     %s\n", cliui.DimStyle.Render(firstLine(pair[1])))
		}
		fmt.Fprintln(c.out)
		return nil

	case "templates":
		cards, err := c.client.templates(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out)
		for _, card := range cards {
			fmt.Fprintf(c.out, "  %s  %s\n", cliui.NameStyle.Render(card.Title), cliui.DimStyle.Render(card.Description))
		}
		fmt.Fprintln(c.out)
		return nil

	case "template":
		if arg == "" {
			return fmt.Errorf("usage: /template <title>")
		}
		if err := c.client.selectTemplate(ctx, c.state.ID, arg); err != nil {
			return err
		}
		// An empty question submits the draft the template selected.
		return c.ask(ctx, "")

	case "models":
		models, err := c.client.models(ctx)
		if err != nil {
			return err
		}
		selected := c.state.Model
		if selected == "" {
			selected = models.Default
		}
		fmt.Fprintf(c.out, "\n  %s\n", cliui.DimStyle.Render(models.Provider))
		for _, m := range models.Models {
			marker := " "
			if m == selected {
				marker = "*"
			}
			fmt.Fprintf(c.out, "  %s %s\n", marker, m)
		}
		fmt.Fprintln(c.out)
		return nil

	case "model":
		state, err := c.client.setModel(ctx, c.state.ID, arg)
		if err != nil {
			return err
		}
		c.state = state
		if state.Model == "" {
			c.done("Using the server's model")
			return nil
		}
		c.done("Using " + cliui.NameStyle.Render(state.Model))
		return nil

	case "export":
		format := arg
		if format == "" {
			format = "md"
		}
		saved, err := c.client.export(ctx, c.state.ID, c.state.Current, format)
		if err != nil {
			return err
		}
		c.done("Saved " + cliui.ValueStyle.Render(saved.Path))
		return nil

	default:
		return fmt.Errorf("unknown command /%s (try /help)", name)
	}
}

func (c *chatCommander) done(msg string) {
	fmt.Fprintf(c.out, "  %s %s\n\n", cliui.SuccessMark, msg)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

const helpText = `  /new <name>        create a conversation and switch to it
  /use <name>        switch to a conversation
  /delete [name]     delete a conversation (default: the current one)
  /list              list conversations
  /history           show the current conversation
  /templates         list question templates
  /template <title>  ask the question of a template card
  /models            list the models of the server's provider
  /model [name]      answer with a model (default: the server's)
  /export [md|json]  save the current conversation on the server
  /exit              quit
`
