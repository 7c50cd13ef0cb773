package ai

import (
	"strings"
	"testing"
)

func TestBuildPromptIncludesContextAndQuestion(t *testing.T) {
	got := buildPrompt(Request{
		Context:  "[Document 1]\nGo is a language.",
		Question: "What is Go?",
	})

	if !strings.Contains(got, "Context from documents:\n[Document 1]\nGo is a language.") {
		t.Errorf("missing context block:\n%s", got)
	}
	if !strings.Contains(got, "Current question: What is Go?") {
		t.Errorf("missing question:\n%s", got)
	}
	if strings.Contains(got, "Previous conversation:") {
		t.Errorf("history header present without history:\n%s", got)
	}
}

func TestBuildPromptHistoryWindow(t *testing.T) {
	history := []Turn{
		{Question: "q1", Answer: "a1"},
		{Question: "q2", Answer: "a2"},
		{Question: "q3", Answer: "a3"},
		{Question: "q4", Answer: "a4"},
		{Question: "q5", Answer: "a5"},
		{Question: "q6", Answer: "a6"},
	}

	got := buildPrompt(Request{Context: "ctx", History: history, Question: "now"})

	if !strings.Contains(got, "Previous conversation:") {
		t.Errorf("missing history header:\n%s", got)
	}
	if strings.Contains(got, "Human: q1") {
		t.Errorf("history older than the window leaked in:\n%s", got)
	}
	for _, want := range []string{"Human: q2\nAssistant: a2", "Human: q6\nAssistant: a6"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing turn %q:\n%s", want, got)
		}
	}
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{Provider: ProviderGemini, Model: "gemini-2.5-flash"}, "googleai/gemini-2.5-flash"},
		{Config{Provider: ProviderOllama, Model: "llama3.3"}, "ollama/llama3.3"},
		{Config{Provider: ProviderOpenAI, Model: "gpt-4o"}, "openai/gpt-4o"},
		{Config{Provider: ProviderOpenAI, Model: "custom/model"}, "custom/model"},
	}

	for _, tt := range tests {
		if got := tt.cfg.fullModelName(); got != tt.want {
			t.Errorf("fullModelName(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}
