package react

import "strings"

// DefaultMinCompletionIterations is the dispatch floor below which a plain
// reply is never accepted as completion.
const DefaultMinCompletionIterations = 5

// DefaultCompletionPhrases are the markers that count as an explicit claim of
// being done.
var DefaultCompletionPhrases = []string{
	"task complete",
	"task completed",
	"task is complete",
	"all steps completed",
	"all steps are complete",
	"goal achieved",
	"goal has been achieved",
	"i have completed",
	"i've completed",
	"successfully completed",
}

// CompletionDetector decides whether a reply without tool calls ends a task.
type CompletionDetector interface {
	IsComplete(content string, iterations int) bool
}

// PhraseCompletion accepts a reply that contains an explicit completion
// phrase once at least MinIterations tools have been dispatched.
type PhraseCompletion struct {
	Phrases       []string
	MinIterations int
}

// NewPhraseCompletion returns the default detector with the given floor.
func NewPhraseCompletion(minIterations int) PhraseCompletion {
	if minIterations <= 0 {
		minIterations = DefaultMinCompletionIterations
	}
	return PhraseCompletion{Phrases: DefaultCompletionPhrases, MinIterations: minIterations}
}

func (p PhraseCompletion) IsComplete(content string, iterations int) bool {
	if iterations < p.MinIterations {
		return false
	}
	text := strings.ToLower(strings.Join(strings.Fields(content), " "))
	if text == "" {
		return false
	}
	for _, phrase := range p.Phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}
