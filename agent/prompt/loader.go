package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/supervisor.txt
	supervisorRaw string

	//go:embed template/extractor.txt
	extractorRaw string

	//go:embed template/faq.txt
	faqRaw string
)

// PromptSet holds loaded prompt content. Supervisor and Extractor are eino
// FString templates, so literal braces are doubled.
type PromptSet struct {
	Supervisor string
	Extractor  string
	FAQ        string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Supervisor: strings.TrimSpace(supervisorRaw),
		Extractor:  strings.TrimSpace(extractorRaw),
		FAQ:        strings.TrimSpace(faqRaw),
	}
}
