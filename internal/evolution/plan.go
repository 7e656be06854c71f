package evolution

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nerith/agentd/internal/journal"
)

// defaultTier is used when the journal has no hierarchy-of-needs row
// marked current_focus (a fresh install before any tier bookkeeping has
// run).
var defaultTier = journal.NeedsTier{Tier: 1, Name: "survival"}

// tierGoals maps a hierarchy-of-needs tier to the 3 coarse goals the Plan
// phase asks the router to break into concrete tasks (spec.md §4.6 Plan:
// "e.g. at tier 1: efficiency, stability, error reduction").
var tierGoals = map[int][]string{
	1: {"efficiency", "stability", "error reduction"},
	2: {"capability expansion", "cost discipline", "reliability"},
	3: {"autonomy", "tool diversity", "knowledge accumulation"},
	4: {"self-improvement velocity", "architectural health", "strategic planning"},
}

// goalsForTier returns the 3 goals for tier, falling back to tier 1's set
// for any tier not in tierGoals.
func goalsForTier(tier int) []string {
	if goals, ok := tierGoals[tier]; ok {
		return goals
	}
	return tierGoals[1]
}

// planTaskPrompt builds the router prompt whose response parsePlanTasks
// expects: 2-3 tasks in strict TASK:/DESCRIPTION:/EXPECTED_BENEFIT:/EFFORT:
// blocks (spec.md §4.6 Plan).
func planTaskPrompt(tierName, goal string) string {
	return fmt.Sprintf(
		"The agent's current hierarchy-of-needs focus is %q. Propose 2-3 concrete "+
			"engineering tasks that advance the goal %q. Respond with one block per "+
			"task, in exactly this format and nothing else:\n\n"+
			"TASK: <short name>\n"+
			"DESCRIPTION: <one sentence>\n"+
			"EXPECTED_BENEFIT: <one sentence>\n"+
			"EFFORT: <low|medium|high>\n",
		tierName, goal,
	)
}

var (
	taskLineRe   = regexp.MustCompile(`(?i)^TASK:\s*(.+)$`)
	descLineRe   = regexp.MustCompile(`(?i)^DESCRIPTION:\s*(.+)$`)
	benefitLineRe = regexp.MustCompile(`(?i)^EXPECTED_BENEFIT:\s*(.+)$`)
	effortLineRe = regexp.MustCompile(`(?i)^EFFORT:\s*(.+)$`)
)

// parsePlanTasks parses a router response in the TASK:/DESCRIPTION:/
// EXPECTED_BENEFIT:/EFFORT: format into Tasks, each defaulted to
// TaskPending. Malformed or partial blocks are skipped rather than
// failing the whole phase — a router response is untrusted input.
func parsePlanTasks(text string) []Task {
	var tasks []Task
	var current *Task
	flush := func() {
		if current != nil && current.Name != "" {
			tasks = append(tasks, *current)
		}
		current = nil
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if m := taskLineRe.FindStringSubmatch(line); m != nil {
			flush()
			current = &Task{Name: m[1], Status: TaskPending}
			continue
		}
		if current == nil {
			continue
		}
		if m := descLineRe.FindStringSubmatch(line); m != nil {
			current.Description = m[1]
		} else if m := benefitLineRe.FindStringSubmatch(line); m != nil {
			current.ExpectedBenefit = m[1]
		} else if m := effortLineRe.FindStringSubmatch(line); m != nil {
			current.Effort = strings.ToLower(m[1])
		}
	}
	flush()
	return tasks
}

// prioritizePrompt builds the single router prompt the Prioritize phase
// sends, listing every diagnosis item and plan task by name.
func prioritizePrompt(diagnosisItems, taskNames []string) string {
	var b strings.Builder
	b.WriteString("Rank the following candidate improvements from most to least " +
		"valuable right now. Respond with a numbered list naming each item, one " +
		"per line, nothing else.\n\n")
	for _, item := range diagnosisItems {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	for _, name := range taskNames {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return b.String()
}

var rankedLineRe = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.+?)\s*$`)

// parseRankedNames extracts an ordered list of names from a numbered-list
// router response. Lines that don't match the "N. name" / "N) name"
// shape are ignored.
func parseRankedNames(text string) []string {
	type entry struct {
		rank int
		name string
	}
	var entries []entry
	for _, line := range strings.Split(text, "\n") {
		m := rankedLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rank, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		entries = append(entries, entry{rank: rank, name: m[2]})
	}
	names := make([]string, len(entries))
	for _, e := range entries {
		idx := e.rank - 1
		if idx < 0 || idx >= len(entries) {
			idx = len(entries) - 1
		}
		names[idx] = e.name
	}
	out := names[:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// reorderTasks sorts tasks by their position in rankedNames (matched by
// Name, case-insensitive substring both ways since the router may
// paraphrase), appending any task absent from rankedNames at the end in
// its original order.
func reorderTasks(tasks []Task, rankedNames []string) []Task {
	rank := func(name string) int {
		lower := strings.ToLower(name)
		for i, r := range rankedNames {
			rl := strings.ToLower(r)
			if rl == lower || strings.Contains(rl, lower) || strings.Contains(lower, rl) {
				return i
			}
		}
		return len(rankedNames)
	}
	indices := make([]int, len(tasks))
	ranks := make([]int, len(tasks))
	for i, t := range tasks {
		indices[i] = i
		ranks[i] = rank(t.Name)
	}
	sort.SliceStable(indices, func(i, j int) bool { return ranks[indices[i]] < ranks[indices[j]] })

	ordered := make([]Task, len(tasks))
	for pos, idx := range indices {
		ordered[pos] = tasks[idx]
	}
	return ordered
}
