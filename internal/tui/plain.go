package tui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RunPlain is the line based alternative to the full screen UI. It reads one
// query per line until EOF or quit; pipeline errors are printed as the reply
// and the loop continues.
func RunPlain(in io.Reader, out io.Writer, p Pipeline, opts Options) error {
	m := New(p, "", opts)
	fmt.Fprintln(out, "Welcome to TeaBot! Type 'quit' to exit.")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "You: ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		q := strings.TrimSpace(sc.Text())
		if q == "" {
			continue
		}
		if strings.EqualFold(q, "quit") || strings.EqualFold(q, "exit") {
			fmt.Fprintln(out, "TeaBot: Goodbye!")
			return nil
		}

		if m.opts.Mode == ModeSearch {
			msg := m.search(q)().(resultsMsg)
			if msg.err != nil {
				fmt.Fprintf(out, "Error: %v\n", msg.err)
				continue
			}
			if len(msg.items) == 0 {
				fmt.Fprintln(out, "No results.")
			}
			for i, it := range msg.items {
				fmt.Fprintf(out, "%d. %s (%s) score=%.3f\n   Flavors: %s\n   %s\n",
					i+1, it.Item.Name, it.Item.Type, it.Score, strings.Join(it.Item.Flavors, ", "), it.Item.Description)
			}
			continue
		}
		msg := m.recommend(q)().(replyMsg)
		if msg.err != nil {
			fmt.Fprintf(out, "TeaBot: Error: %v\n", msg.err)
			continue
		}
		fmt.Fprintf(out, "TeaBot: %s\n", msg.text)
	}
}
