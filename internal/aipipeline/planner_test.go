package aipipeline

import "testing"

func TestPlanReply_Greeting(t *testing.T) {
	p := PlanReply(Analysis{Intent: "greeting", Tone: "casual"}, Gating{Reply: true}, "hi", 5)
	if p.Action != "greet" || !p.IncludeGreeting || p.LengthGuidance != "concise" {
		t.Fatalf("unexpected plan for greeting: %+v", p)
	}
}

func TestPlanReply_QuestionUsesLastQuestionAsKeyPoint(t *testing.T) {
	a := Analysis{Intent: "question", QuestionsAsked: []string{"what time?", "where?"}}
	p := PlanReply(a, Gating{Reply: true}, "where?", 10)
	if p.Action != "answer_question" {
		t.Fatalf("expected answer_question action, got %s", p.Action)
	}
	if len(p.KeyPoints) == 0 || p.KeyPoints[0] != "where?" {
		t.Fatalf("expected the last question as the lead key point, got %+v", p.KeyPoints)
	}
}

func TestPlanReply_UnresolvedItemsTakePriorityOverQuestions(t *testing.T) {
	a := Analysis{Intent: "discussion", UnresolvedItems: []string{"pending approval"}, QuestionsAsked: []string{"when?"}}
	p := PlanReply(a, Gating{Reply: true}, "ok", 10)
	if p.Action != "clarify_missing_info" {
		t.Fatalf("expected clarify_missing_info to take priority, got %s", p.Action)
	}
}

func TestPlanReply_DecisionsMadeProposesNextStep(t *testing.T) {
	a := Analysis{Intent: "discussion", DecisionsMade: []string{"go with option B"}}
	p := PlanReply(a, Gating{Reply: true}, "sounds good", 10)
	if p.Action != "propose_next_step" {
		t.Fatalf("expected propose_next_step, got %s", p.Action)
	}
	if len(p.AvoidRepeating) != 1 || p.AvoidRepeating[0] != "go with option B" {
		t.Fatalf("expected decisions carried into AvoidRepeating, got %+v", p.AvoidRepeating)
	}
}

func TestPlanReply_DefaultsToDiscuss(t *testing.T) {
	p := PlanReply(Analysis{Intent: "other"}, Gating{Reply: true}, "ok", 10)
	if p.Action != "discuss" {
		t.Fatalf("expected discuss fallback, got %s", p.Action)
	}
}

func TestPlanReply_ShortConversationIncludesGreeting(t *testing.T) {
	p := PlanReply(Analysis{Intent: "other"}, Gating{Reply: true}, "ok", maxContextLinesForShortConversation)
	if !p.IncludeGreeting {
		t.Fatal("expected short conversations to include a greeting regardless of intent")
	}
}

func TestPlanReply_NeedSearchSetsSearchQuery(t *testing.T) {
	p := PlanReply(Analysis{Intent: "other"}, Gating{Reply: true, NeedSearch: true}, "what's the weather", 10)
	if p.SearchQuery == nil || *p.SearchQuery != "what's the weather" {
		t.Fatalf("expected search query set from the current message, got %v", p.SearchQuery)
	}
}

func TestPlanReply_DefaultLengthGuidanceIsMedium(t *testing.T) {
	p := PlanReply(Analysis{Intent: "other"}, Gating{Reply: true}, "ok", 10)
	if p.LengthGuidance != "medium" {
		t.Fatalf("expected default medium length guidance, got %q", p.LengthGuidance)
	}
}
