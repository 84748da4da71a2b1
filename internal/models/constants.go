package models

const (
	// UntitledConversation is the placeholder title replaced by the first question.
	UntitledConversation = "New Chat"
	MaxTitleRunes        = 40
	WholeSyllabusTopic   = "the whole syllabus"
	ContextSeparator     = "\n---\n"
	ThinkTag             = `(?s)<think>.*?</think>`
)

// FillerPhrases are stripped from the start of a question before it becomes a title.
var FillerPhrases = []string{
	"can you please",
	"could you please",
	"can you",
	"could you",
	"please",
	"i want to know",
	"i would like to know",
	"tell me",
	"explain to me",
	"what is meant by",
	"hey",
	"hi",
}

var MotivationPool = []string{
	"Small steps every day add up to big results.",
	"You don't have to be great to start, but you have to start to be great.",
	"Focus on progress, not perfection.",
	"One topic at a time. You've got this.",
	"Consistency beats intensity. Show up today.",
	"Every expert was once a beginner.",
	"Your future self will thank you for studying now.",
}

var (
	PlanPromptTemplate = `You are an academic study planner.

Topics:
%s

Available free slots: %s

Timetable:
%s

Create a clear 7-day weekly study plan for week %d.
`

	AnswerPromptTemplate = `You are a patient tutor helping a student with their syllabus.

Syllabus context:
%s

Conversation so far:
%s

Student question: %s

Answer in simple language. Add one or two lines that illustrate the idea with an example.
Do not answer with terse bullet points only.
`

	NotesPromptTemplate = `You are preparing revision notes for a student.

Topic: %s

Syllabus context:
%s

Write well structured study notes in markdown covering the key ideas, definitions and examples.
`
)
