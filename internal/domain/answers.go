package domain

// AnswerPayload is the tagged union of per-question-type answer shapes.
// Kind selects which field is meaningful; the rest stay zero.
type AnswerPayload struct {
	Kind    QuestionType `json:"kind"`
	Choice  int          `json:"choice,omitempty"`
	Choices []int        `json:"choices,omitempty"`
	Value   float64      `json:"value,omitempty"`
	Text    string       `json:"text,omitempty"`
}

// ChoiceAnswer builds a single-choice payload.
func ChoiceAnswer(choice int) AnswerPayload {
	return AnswerPayload{Kind: QuestionSingleChoice, Choice: choice}
}

// MultiChoiceAnswer builds a multiple-choice payload.
func MultiChoiceAnswer(choices ...int) AnswerPayload {
	return AnswerPayload{Kind: QuestionMultiChoice, Choices: choices}
}

// SliderAnswer builds a slider payload.
func SliderAnswer(value float64) AnswerPayload {
	return AnswerPayload{Kind: QuestionSlider, Value: value}
}

// TextAnswer builds a free-response payload.
func TextAnswer(text string) AnswerPayload {
	return AnswerPayload{Kind: QuestionFreeText, Text: text}
}

// PollAnswer builds a poll-single payload.
func PollAnswer(choice int) AnswerPayload {
	return AnswerPayload{Kind: QuestionPollSingle, Choice: choice}
}

// PollMultiAnswer builds a poll-multiple payload.
func PollMultiAnswer(choices ...int) AnswerPayload {
	return AnswerPayload{Kind: QuestionPollMulti, Choices: choices}
}

// Matches reports whether the payload kind fits the question type. Polls and
// choice questions share shapes but not kinds, so this is a strict check.
func (p AnswerPayload) Matches(t QuestionType) bool {
	return p.Kind == t
}
