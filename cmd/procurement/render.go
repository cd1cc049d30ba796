package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/lachopopov/multiagent-system-demo/agent/conversation"
	"github.com/lachopopov/multiagent-system-demo/types"
)

var (
	colorPrimary = lipgloss.Color("6")
	colorMuted   = lipgloss.Color("241")
	colorSuccess = lipgloss.Color("42")
	colorWarn    = lipgloss.Color("214")
	colorError   = lipgloss.Color("203")
)

type styles struct {
	header  lipgloss.Style
	tool    lipgloss.Style
	failed  lipgloss.Style
	state   lipgloss.Style
	success lipgloss.Style
	warn    lipgloss.Style
}

func newStyles() styles {
	return styles{
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorMuted),
		tool:    lipgloss.NewStyle().Foreground(colorMuted),
		failed:  lipgloss.NewStyle().Foreground(colorError),
		state:   lipgloss.NewStyle().Foreground(colorMuted).Italic(true),
		success: lipgloss.NewStyle().Bold(true).Foreground(colorSuccess),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
}

// renderer 把会话事件实时输出到终端。非终端输出或 --plain 时退化为纯文本。
type renderer struct {
	out      io.Writer
	plain    bool
	human    string
	markdown *glamour.TermRenderer
	styles   styles
	mu       sync.Mutex
}

func newRenderer(out io.Writer, plain bool, human string) *renderer {
	r := &renderer{out: out, plain: plain || !isTerminal(out), human: human, styles: newStyles()}
	if !r.plain {
		width := 100
		if f, ok := out.(*os.File); ok {
			if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
				width = w
			}
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Observe 实现 conversation.Observer
func (r *renderer) Observe(ev conversation.Event) {
	switch ev.Type {
	case conversation.EventMessageAppended:
		if ev.Message != nil {
			r.Message(*ev.Message)
		}
	case conversation.EventStateChanged:
		if ev.State == conversation.StateAwaitingHuman && !r.plain {
			r.println(r.styles.state.Render("waiting for the human approver..."))
		}
	}
}

// Message 输出一条会话消息及其工具调用
func (r *renderer) Message(m types.Message) {
	var b strings.Builder
	if r.plain {
		fmt.Fprintf(&b, "---------- %s ----------\n", m.Sender)
	} else {
		style := r.styles.header
		if r.human != "" && m.Sender == r.human {
			style = style.Foreground(colorWarn)
		}
		b.WriteString(style.Render(m.Sender))
		b.WriteString("\n")
	}

	for _, inv := range m.ToolInvocations {
		b.WriteString(r.toolLine(inv))
		b.WriteString("\n")
	}

	b.WriteString(r.content(m.Content))
	r.println(strings.TrimRight(b.String(), "\n"))
}

func (r *renderer) toolLine(inv types.ToolInvocation) string {
	args := string(inv.Arguments)
	if args == "" {
		args = "{}"
	}
	if inv.Failed() {
		line := fmt.Sprintf("[tool] %s(%s) failed: %s", inv.Tool, args, inv.Error)
		if r.plain {
			return line
		}
		return r.styles.failed.Render(line)
	}
	line := fmt.Sprintf("[tool] %s(%s) -> %s", inv.Tool, args, string(inv.Result))
	if r.plain {
		return line
	}
	return r.styles.tool.Render(line)
}

func (r *renderer) content(text string) string {
	if r.markdown == nil {
		return text
	}
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Result 报告运行结束原因，失败原因同样照实输出
func (r *renderer) Result(res *conversation.RunResult, err error) {
	if res == nil {
		if err != nil {
			r.println(r.paint(r.styles.warn, "Run failed: "+err.Error()))
		}
		return
	}

	line := fmt.Sprintf("Conversation ended: %s", res.Reason)
	if res.Detail != "" {
		line += " (" + res.Detail + ")"
	}
	line += fmt.Sprintf(" after %d turns", res.Turns)

	style := r.styles.success
	if err != nil {
		style = r.styles.warn
		line += ": " + err.Error()
	}
	r.println(r.paint(style, line))
}

func (r *renderer) paint(style lipgloss.Style, s string) string {
	if r.plain {
		return s
	}
	return style.Render(s)
}

func (r *renderer) println(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, s)
}
