// Package session holds the conversation data model: Session metadata,
// git-context snapshot, and the ConversationItem tagged union that the
// journal persists and the turn controller streams through.
package session

import (
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

// GitContext is captured once at session creation.
type GitContext struct {
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`
	Commit string `json:"commit,omitempty" yaml:"commit,omitempty"`
	Dirty  bool   `json:"dirty,omitempty" yaml:"dirty,omitempty"`
}

// CaptureGitContext shells out to git the way internal/orchestrator/build.go
// gathers repo status; returns nil (not an error) when cwd isn't a repo.
func CaptureGitContext(cwd string) *GitContext {
	branch, err := runGit(cwd, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return nil
	}
	commit, err := runGit(cwd, "rev-parse", "HEAD")
	if err != nil {
		return nil
	}
	status, _ := runGit(cwd, "status", "--porcelain")
	return &GitContext{
		Branch: branch,
		Commit: commit,
		Dirty:  status != "",
	}
}

func runGit(cwd string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = cwd
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Session is a conversation with stable identity.
type Session struct {
	ID           string      `json:"id"`
	Timestamp    time.Time   `json:"timestamp"`
	Instructions string      `json:"instructions,omitempty"`
	Git          *GitContext `json:"git,omitempty"`
}

// New creates a fresh session with a random id.
func New(instructions string, cwd string) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Instructions: instructions,
		Git:          CaptureGitContext(cwd),
	}
}

// Kind discriminates the conversation item variants.
type Kind string

const (
	KindUserMessage         Kind = "user_message"
	KindAssistantMessage    Kind = "assistant_message"
	KindReasoning           Kind = "reasoning"
	KindFunctionCall        Kind = "function_call"
	KindFunctionCallOutput  Kind = "function_call_output"
	KindLocalShellCall      Kind = "local_shell_call"
	KindLocalShellOutput    Kind = "local_shell_call_output"
)

// Item is the tagged union over all conversation variants. Only the
// fields relevant to Kind are populated; unused fields are omitted from
// JSON via omitempty so journaled lines stay compact.
type Item struct {
	Kind Kind `json:"kind"`

	// UserMessage / AssistantMessage / Reasoning
	Content string `json:"content,omitempty"`

	// FunctionCall
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// FunctionCallOutput
	Success bool `json:"success,omitempty"`

	// LocalShellCall
	Argv                []string `json:"argv,omitempty"`
	Cwd                 string   `json:"cwd,omitempty"`
	TimeoutMs           int64    `json:"timeout_ms,omitempty"`
	EscalatedPermission bool     `json:"escalated_permissions,omitempty"`
}

func UserMessage(content string) Item {
	return Item{Kind: KindUserMessage, Content: content}
}

func AssistantMessage(content string) Item {
	return Item{Kind: KindAssistantMessage, Content: content}
}

func ReasoningItem(content string) Item {
	return Item{Kind: KindReasoning, Content: content}
}

func FunctionCall(callID, name, arguments string) Item {
	return Item{Kind: KindFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

func FunctionCallOutput(callID, content string, success bool) Item {
	return Item{Kind: KindFunctionCallOutput, CallID: callID, Content: content, Success: success}
}

func LocalShellCall(callID string, argv []string, cwd string, timeoutMs int64, escalated bool) Item {
	return Item{
		Kind:                KindLocalShellCall,
		CallID:              callID,
		Argv:                argv,
		Cwd:                 cwd,
		TimeoutMs:           timeoutMs,
		EscalatedPermission: escalated,
	}
}

func LocalShellCallOutput(callID, content string, success bool) Item {
	return Item{Kind: KindLocalShellOutput, CallID: callID, Content: content, Success: success}
}

// IsKnownKind reports whether k is one of the variants this package
// recognizes. Resume and model-request building both skip unknown kinds
// rather than rejecting the whole file/turn.
func IsKnownKind(k Kind) bool {
	switch k {
	case KindUserMessage, KindAssistantMessage, KindReasoning,
		KindFunctionCall, KindFunctionCallOutput,
		KindLocalShellCall, KindLocalShellOutput:
		return true
	default:
		return false
	}
}
