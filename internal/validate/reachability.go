package validate

import "sort"

// reachabilityResult is the outcome of a BFS over the gamebook's
// navigation graph from its start section.
type reachabilityResult struct {
	reachable   map[string]bool
	unreachable []string
}

// reachabilityFrom runs a breadth-first search over every non-terminal
// sequence edge, starting at start.
func reachabilityFrom(g Gamebook, start string) reachabilityResult {
	reachable := map[string]bool{}
	queue := []string{start}
	if _, ok := g.Sections[start]; ok {
		reachable[start] = true
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		section, ok := g.Sections[id]
		if !ok {
			continue
		}
		for _, edge := range section.Sequence {
			if IsTerminal(edge.Outcome) || edge.TargetSection == "" {
				continue
			}
			if !reachable[edge.TargetSection] {
				reachable[edge.TargetSection] = true
				queue = append(queue, edge.TargetSection)
			}
		}
	}

	var unreachable []string
	for id := range g.Sections {
		if !reachable[id] {
			unreachable = append(unreachable, id)
		}
	}
	sort.Strings(unreachable)

	return reachabilityResult{reachable: reachable, unreachable: unreachable}
}

// entryPoints narrows a set of unreachable sections down to the ones
// not referenced by any other unreachable section — the root causes a
// reviewer should look at first, rather than every section downstream
// of a missing link.
func entryPoints(g Gamebook, unreachable []string) []string {
	unreachableSet := make(map[string]bool, len(unreachable))
	for _, id := range unreachable {
		unreachableSet[id] = true
	}

	referencedByUnreachable := map[string]bool{}
	for _, id := range unreachable {
		section, ok := g.Sections[id]
		if !ok {
			continue
		}
		for _, edge := range section.Sequence {
			if edge.TargetSection != "" {
				referencedByUnreachable[edge.TargetSection] = true
			}
		}
	}

	var entries []string
	for _, id := range unreachable {
		if !referencedByUnreachable[id] {
			entries = append(entries, id)
		}
	}
	sort.Strings(entries)
	return entries
}
