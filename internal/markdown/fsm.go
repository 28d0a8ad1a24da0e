package markdown

import (
	"regexp"
	"strings"
)

// state is the parser state between lines.
type state int

const (
	// stateOutside: no task is open.
	stateOutside state = iota
	// stateInTask: a checklist item is open and has no metadata yet.
	stateInTask
	// stateInTaskMetadata: the open item has at least one metadata line.
	stateInTaskMetadata
)

func (s state) String() string {
	switch s {
	case stateOutside:
		return "outside"
	case stateInTask:
		return "in-task"
	case stateInTaskMetadata:
		return "in-task-metadata"
	default:
		return "unknown"
	}
}

// transition classifies one input line.
type transition int

const (
	transHeading transition = iota
	transChecklist
	transMetadata
	transNote
	transBlank
	transText
	transEOF
)

func (t transition) String() string {
	return [...]string{"heading", "checklist", "metadata", "note", "blank", "text", "eof"}[t]
}

var (
	headingRe   = regexp.MustCompile(`^#{2,6}\s+(.*)$`)
	checklistRe = regexp.MustCompile(`^- \[( |x|X)\]\s+(.*)$`)
)

// event is a classified line with the fields its transition needs.
type event struct {
	kind    transition
	text    string // heading title, task title or note text
	key     string // metadata key
	value   string // metadata value
	checked bool
}

// classify decides which transition line triggers in state s. Indented
// lines only count as task content while a task is open.
func classify(s state, line string) event {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		return event{kind: transHeading, text: strings.TrimSpace(m[1])}
	}
	if m := checklistRe.FindStringSubmatch(line); m != nil {
		return event{kind: transChecklist, text: strings.TrimSpace(m[2]), checked: m[1] != " "}
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return event{kind: transBlank}
	}
	if s == stateOutside || !strings.HasPrefix(line, "  ") {
		return event{kind: transText, text: trimmed}
	}

	rawKey, value, found := strings.Cut(trimmed, ":")
	if !found || rawKey == "" {
		return event{kind: transNote, text: trimmed}
	}
	return event{
		kind:  transMetadata,
		key:   strings.ToLower(strings.TrimSpace(rawKey)),
		value: strings.TrimSpace(value),
	}
}

// openTask accumulates one checklist item while it is open.
type openTask struct {
	title    string
	category string
	checked  bool
	line     int
	notes    []string
	metadata map[string]string
}

// machine is the line-by-line checklist parser.
type machine struct {
	state   state
	section string
	current *openTask
	done    []openTask
}

// step applies one event. line is the 1-based line number in the file.
func (m *machine) step(ev event, line int) {
	switch ev.kind {
	case transHeading:
		m.close()
		m.section = ev.text
	case transChecklist:
		m.close()
		m.current = &openTask{
			title:    ev.text,
			category: m.section,
			checked:  ev.checked,
			line:     line,
			metadata: map[string]string{},
		}
		m.state = stateInTask
	case transMetadata:
		m.current.metadata[ev.key] = ev.value
		m.state = stateInTaskMetadata
	case transNote:
		m.current.notes = append(m.current.notes, ev.text)
	case transBlank, transText:
		// Neither closes the open task.
	case transEOF:
		m.close()
	}
}

func (m *machine) close() {
	if m.current != nil {
		m.done = append(m.done, *m.current)
	}
	m.current = nil
	m.state = stateOutside
}

// scan runs the machine over body lines. offset is the number of lines
// that precede the body in the file.
func scan(body []string, offset int) []openTask {
	m := &machine{}
	for i, line := range body {
		m.step(classify(m.state, line), offset+i+1)
	}
	m.step(event{kind: transEOF}, offset+len(body)+1)
	return m.done
}
