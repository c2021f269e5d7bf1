package plan

import (
	"fmt"
	"strings"
)

const separatorWidth = 100

// Describe renders the aggregate plan followed by each worker's share. The
// output depends only on its arguments.
func Describe(total Plan, parts map[string]Plan, hosts []string) string {
	var b strings.Builder
	b.WriteString("\t\t\t\tTOTAL load:\n")
	describeLoad(&b, total)
	for _, h := range hosts {
		part, ok := parts[h]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\t\t\t\tPARTIAL load for worker %s:\n", h)
		describeLoad(&b, part)
	}
	return b.String()
}

func describeLoad(b *strings.Builder, p Plan) {
	actions := p.ActionNames()
	active := make(map[string]int, len(actions))

	offset := 0
	for i, d := range p.Intervals {
		fmt.Fprintf(b, "%d-th second:\n", offset)
		for _, action := range actions {
			deltas := p.Actions[action]
			if i >= len(deltas) {
				continue
			}
			delta := deltas[i]
			active[action] += delta
			verb := "added"
			if delta < 0 {
				verb = "removed"
				delta = -delta
			}
			fmt.Fprintf(b, "\tAction %q: %d user(s) to be %s, total will be %d user(s) doing this action\n",
				action, delta, verb, active[action])
		}
		offset += d
	}

	b.WriteString("\n\t\t\tScheduled as follows:\n")
	for _, action := range actions {
		res := p.Compile(action)
		b.WriteString(res.Description)
		fmt.Fprintf(b, "%d-th second: stop test run.\n", res.Duration)
		if r, ok := p.Users[action]; ok {
			fmt.Fprintf(b, "Users from range [%d, %d) will be taken for %s.\n", r.Start(), r.End(), action)
		}
		b.WriteString("\n")
	}
	b.WriteString(strings.Repeat("*", separatorWidth))
	b.WriteString("\n")
}
