package llm

import "testing"

func TestBuildGeminiRequest_ExtractsSystemInstruction(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are Mesbot."},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}

	req := buildGeminiRequest(messages, Options{Temperature: 0.5})

	if req.SystemInstr == nil || req.SystemInstr.Parts[0].Text != "You are Mesbot." {
		t.Fatalf("expected system instruction extracted, got %+v", req.SystemInstr)
	}
	if len(req.Contents) != 2 {
		t.Fatalf("expected 2 contents (system removed), got %d", len(req.Contents))
	}
	if req.Contents[0].Role != "user" {
		t.Errorf("expected first content role user, got %s", req.Contents[0].Role)
	}
	if req.Contents[1].Role != "model" {
		t.Errorf("expected assistant remapped to model, got %s", req.Contents[1].Role)
	}
	if req.GenerationConfig.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %v", req.GenerationConfig.Temperature)
	}
}

func TestBuildGeminiRequest_JSONModeSetsMIMEType(t *testing.T) {
	req := buildGeminiRequest([]Message{{Role: "user", Content: "hi"}}, Options{JSONMode: true})
	if req.GenerationConfig.ResponseMIMEType != "application/json" {
		t.Errorf("expected responseMimeType application/json, got %q", req.GenerationConfig.ResponseMIMEType)
	}
}

func TestBuildGeminiRequest_NoSystemMessage(t *testing.T) {
	req := buildGeminiRequest([]Message{{Role: "user", Content: "hi"}}, Options{})
	if req.SystemInstr != nil {
		t.Errorf("expected no system instruction, got %+v", req.SystemInstr)
	}
}

func TestExtractGeminiText_ConcatenatesParts(t *testing.T) {
	gr := geminiResponse{}
	gr.Candidates = []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	}{
		{Content: geminiContent{Parts: []geminiPart{{Text: "hello "}, {Text: "world"}}}},
	}
	if got := extractGeminiText(gr); got != "hello world" {
		t.Errorf("expected concatenated text, got %q", got)
	}
}

func TestExtractGeminiText_NoCandidates(t *testing.T) {
	if got := extractGeminiText(geminiResponse{}); got != "" {
		t.Errorf("expected empty text with no candidates, got %q", got)
	}
}
