package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lachopopov/multiagent-system-demo/agent/crews"
	"github.com/lachopopov/multiagent-system-demo/agent/hitl"
	"github.com/lachopopov/multiagent-system-demo/agent/selector"
	"github.com/lachopopov/multiagent-system-demo/agent/transcript"
	"github.com/lachopopov/multiagent-system-demo/config"
	"github.com/lachopopov/multiagent-system-demo/llm/providers/openaicompat"
	"github.com/lachopopov/multiagent-system-demo/types"
)

// execute 运行根命令并返回标准输出
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procurement.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "calculator", "transcript", "migrate", "version"} {
		assert.Contains(t, names, want)
	}

	// 根命令直接接受 run 的参数
	for _, flag := range []string{"task", "once", "plain"} {
		assert.NotNil(t, root.Flags().Lookup(flag), flag)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := newMigrateCmd(&rootOptions{})
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"up", "down", "steps", "status", "version", "force"}, names)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "procurement dev")
	assert.Contains(t, out, "Git Commit: unknown")
}

func TestInitLogger(t *testing.T) {
	logger := initLogger(config.LogConfig{Level: "warn", Format: "json", OutputPaths: []string{"stderr"}})
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	fallback := initLogger(config.LogConfig{Level: "loud", Format: "console"})
	assert.True(t, fallback.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, fallback.Core().Enabled(zapcore.DebugLevel))
}

func TestNewProvider(t *testing.T) {
	cfg := config.DefaultLLMConfig()
	_, ok := newProvider(cfg, zap.NewNop()).(*crews.OfflineProvider)
	assert.True(t, ok)

	cfg.Provider = "openai"
	cfg.APIKey = "sk-test"
	_, ok = newProvider(cfg, zap.NewNop()).(*openaicompat.Provider)
	assert.True(t, ok)
}

func TestSelectorConfig_Overlay(t *testing.T) {
	cfg := config.DefaultConfig()
	sc := selectorConfig(crews.Procurement(), cfg)
	assert.Equal(t, crews.ProcurementTemplate, sc.Template)
	assert.Equal(t, crews.ProcurementPolicy, sc.Policy)
	assert.Equal(t, cfg.Selector.HistoryWindow, sc.HistoryWindow)
	assert.True(t, sc.AllowRepeatedSpeaker)

	cfg.Selector.Template = "custom {participants}"
	cfg.Selector.AllowRepeatedSpeaker = false
	cfg.Selector.Timeout = 0
	sc = selectorConfig(crews.Calculator(), cfg)
	assert.Equal(t, "custom {participants}", sc.Template)
	assert.False(t, sc.AllowRepeatedSpeaker)
	assert.Equal(t, selector.DefaultConfig().Timeout, sc.Timeout)
}

func TestLoopbackAddr(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:9091": true,
		"localhost:9091": true,
		"[::1]:9091":     true,
		":9091":          false,
		"0.0.0.0:9091":   false,
		"10.0.0.5:9091":  false,
		"garbage":        false,
	} {
		assert.Equal(t, want, loopbackAddr(addr), addr)
	}
	assert.True(t, loopbackAddr(config.DefaultServerConfig().Addr))
}

func TestConsole_ReadLine(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(strings.NewReader("first\nsecond\n"), &out)
	ctx := context.Background()

	line, err := c.ReadLine(ctx, "> ")
	require.NoError(t, err)
	assert.Equal(t, "first", line)
	line, err = c.ReadLine(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "second", line)

	_, err = c.ReadLine(ctx, "")
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, strings.HasPrefix(out.String(), "> "))
}

func TestConsole_ReadLineCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := newConsole(pr, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.ReadLine(ctx, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConsole_HumanHandler(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(strings.NewReader("APPROVED\n"), &out)
	b := hitl.NewBoundary(nil, 0, zap.NewNop())
	b.RegisterHandler(c.humanHandler(b))

	text, err := b.Await(context.Background(), hitl.Request{Participant: crews.HumanProxyAgent, Prompt: "Decide"})
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", text)
	assert.Contains(t, out.String(), "Decide: ")
}

func TestConsole_HumanHandlerEOF(t *testing.T) {
	c := newConsole(strings.NewReader(""), io.Discard)
	b := hitl.NewBoundary(nil, 0, zap.NewNop())
	b.RegisterHandler(c.humanHandler(b))

	text, err := b.Await(context.Background(), hitl.Request{Participant: crews.HumanProxyAgent})
	require.NoError(t, err)
	assert.True(t, hitl.IsExitInput(text))
}

func TestConsole_HumanTimeoutLeavesNextLine(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := newConsole(pr, io.Discard)
	b := hitl.NewBoundary(nil, 20*time.Millisecond, zap.NewNop())
	b.RegisterHandler(c.humanHandler(b))

	_, err := b.Await(context.Background(), hitl.Request{Participant: crews.HumanProxyAgent})
	require.ErrorIs(t, err, hitl.ErrHumanTimeout)

	go func() { _, _ = io.WriteString(pw, "next\n") }()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	line, err := c.ReadLine(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "next", line)
}

func TestConsole_LateAnswerPushedBack(t *testing.T) {
	c := newConsole(strings.NewReader("late\n"), io.Discard)
	b := hitl.NewBoundary(nil, 0, zap.NewNop())

	err := c.humanHandler(b)(context.Background(), hitl.Request{ID: "gone", Participant: crews.HumanProxyAgent})
	require.NoError(t, err)

	line, err := c.ReadLine(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "late", line)
}

func TestRenderer_PlainMessage(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false, crews.HumanProxyAgent)
	require.True(t, r.plain, "a buffer is never a terminal")

	msg := types.NewMessage(crews.CalculatorAgent, types.RoleAssistant, "The result is 42. TERMINATE")
	msg.ToolInvocations = []types.ToolInvocation{
		{Tool: "multiply", Arguments: json.RawMessage(`{"a":6,"b":7}`), Result: json.RawMessage(`42`)},
		{Tool: "divide", Arguments: json.RawMessage(`{"a":1,"b":0}`), Error: "division by zero"},
	}
	r.Message(msg)

	got := out.String()
	assert.Contains(t, got, "---------- calculator_agent ----------")
	assert.Contains(t, got, `[tool] multiply({"a":6,"b":7}) -> 42`)
	assert.Contains(t, got, `[tool] divide({"a":1,"b":0}) failed: division by zero`)
	assert.Contains(t, got, "The result is 42. TERMINATE")
}

func TestRun_ProcurementOnce(t *testing.T) {
	out, err := execute(t, "APPROVED\n", "run", "--once", "--plain")
	require.NoError(t, err)

	for _, sender := range []string{
		types.SenderUser, crews.IntakeAgent, crews.PolicyAgent, crews.FinanceAgent,
		crews.VendorRiskAgent, crews.ReviewerAgent, crews.HumanProxyAgent,
	} {
		assert.Contains(t, out, "---------- "+sender+" ----------")
	}
	assert.Contains(t, out, crews.ProcurementHumanPrompt)
	assert.Contains(t, out, "Conversation ended: explicit-keyword-match (human_proxy_agent said APPROVED) after 6 turns")
	assert.NotContains(t, out, nextInstructionPrompt)
}

func TestRun_SessionLoopEndsOnExit(t *testing.T) {
	out, err := execute(t, "APPROVED\nexit\n", "run", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "We need to procure 50 MacBooks")
	assert.Contains(t, out, nextInstructionPrompt)
	assert.Equal(t, 1, strings.Count(out, "Conversation ended:"))
}

func TestCalculator_FileTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.jsonl")
	cfgPath := writeConfig(t, "transcript:\n  type: file\n  path: "+path+"\n")

	out, err := execute(t, "", "calculator", "--once", "--plain", "--config", cfgPath, "What is 6 times 7?")
	require.NoError(t, err)
	assert.Contains(t, out, "The result is 42. TERMINATE")
	assert.Contains(t, out, "Conversation ended: explicit-keyword-match (calculator_agent said TERMINATE) after 1 turns")

	out, err = execute(t, "", "transcript", "--plain", "--config", cfgPath, "--since", "1")
	require.NoError(t, err)
	assert.NotContains(t, out, "---------- user ----------")
	assert.Contains(t, out, "---------- calculator_agent ----------")
	assert.Contains(t, out, "1 message(s), last seq 2")

	store, err := transcript.NewFileStore(path)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCalculator_PromptsForQuestion(t *testing.T) {
	out, err := execute(t, "What is 6 times 7?\n", "calculator", "--once", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Question: ")
	assert.Contains(t, out, "The result is 42")
}

func TestMigrateUp_SQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db", "transcript.db")
	cfgPath := writeConfig(t, "transcript:\n  type: sql\n  database:\n    driver: sqlite\n    name: "+dbPath+"\n")

	out, err := execute(t, "", "migrate", "up", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Migrations complete.")

	out, err = execute(t, "", "migrate", "version", "--config", cfgPath)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestOpenTranscript_SQL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Transcript.Type = "sql"
	cfg.Transcript.Database.Name = filepath.Join(t.TempDir(), "data", "procurement.db")

	a, err := newApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())
	require.NotNil(t, a.pool)

	_, err = a.store.Append(context.Background(), types.NewUserMessage("Buy 50 MacBooks"))
	require.NoError(t, err)
	snap, err := a.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.LastSeq())
}
