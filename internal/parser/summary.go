package parser

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

const (
	summaryMaxLen     = 80
	taskSummaryMaxLen = 60
	bashPathMaxLen    = 200
)

// toolInput is the superset of input fields the summary and file event
// extractors care about. Tools carry only a subset each.
type toolInput struct {
	FilePath    string `json:"file_path"`
	Path        string `json:"path"`
	Command     string `json:"command"`
	Pattern     string `json:"pattern"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
}

func decodeToolInput(raw json.RawMessage) toolInput {
	var in toolInput
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &in)
	}
	return in
}

// toolSummary produces a short human-readable label for a tool invocation.
// Unknown tools get an empty summary rather than a guess.
func toolSummary(name string, raw json.RawMessage) string {
	in := decodeToolInput(raw)

	switch name {
	case "Read", "Write", "Edit":
		if in.FilePath == "" {
			return ""
		}
		return truncate(filepath.Base(in.FilePath), summaryMaxLen)
	case "Bash":
		return truncate(strings.TrimSpace(in.Command), summaryMaxLen)
	case "Grep", "Glob":
		return truncate(in.Pattern, summaryMaxLen)
	case "Task", "TaskCreate", "TaskUpdate":
		if in.Subject != "" {
			return truncate(in.Subject, taskSummaryMaxLen)
		}
		return truncate(in.Description, taskSummaryMaxLen)
	default:
		return ""
	}
}

// toolFileEvent maps a tool invocation onto a file activity record.
// Tools that do not touch the filesystem yield no event.
func toolFileEvent(name string, raw json.RawMessage) (FileEvent, bool) {
	in := decodeToolInput(raw)

	switch name {
	case "Read":
		if in.FilePath == "" {
			return FileEvent{}, false
		}
		return FileEvent{Path: in.FilePath, Kind: "read"}, true
	case "Write":
		if in.FilePath == "" {
			return FileEvent{}, false
		}
		return FileEvent{Path: in.FilePath, Kind: "create"}, true
	case "Edit":
		if in.FilePath == "" {
			return FileEvent{}, false
		}
		return FileEvent{Path: in.FilePath, Kind: "edit"}, true
	case "Glob", "Grep":
		if in.Path == "" {
			return FileEvent{}, false
		}
		return FileEvent{Path: in.Path, Kind: "read"}, true
	case "Bash":
		cmd := strings.TrimSpace(in.Command)
		if cmd == "" {
			return FileEvent{}, false
		}
		return FileEvent{Path: truncate(cmd, bashPathMaxLen), Kind: "bash"}, true
	default:
		return FileEvent{}, false
	}
}

// truncate caps a string at max runes without splitting multibyte
// sequences.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
