package learning

import "strings"

// FallbackDocsBaseURL - базовый адрес документации в минимальном пути.
const FallbackDocsBaseURL = "https://docs.example.com/"

// FallbackDraft строит минимальный детерминированный путь:
// по одному предмету на каждую тему, фиксированная длительность, пустой тест.
// Используется, когда генератор не смог вернуть пригодный документ.
func FallbackDraft(topics []string) Draft {
	names := make([]string, 0, len(topics))
	seen := make(map[string]bool, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		names = append(names, t)
	}
	if len(names) == 0 {
		names = []string{"Getting Started"}
	}

	subjects := make([]Subject, 0, len(names))
	for _, name := range names {
		subjects = append(subjects, Subject{
			Name:           name,
			EstimatedHours: DefaultEstimatedHours,
			Topics:         []Topic{{Name: name}},
			OfficialDocs:   []string{FallbackDocsBaseURL + docsSlug(name)},
			Assessment: Assessment{
				Threshold: DefaultThreshold,
				Status:    AssessmentPending,
				Quiz:      []QuizQuestion{},
			},
		})
	}

	return Draft{
		Name:                DefaultPathName,
		TotalEstimatedHours: DefaultEstimatedHours * float64(len(subjects)),
		Subjects:            subjects,
		Fallback:            true,
	}
}

func docsSlug(topic string) string {
	return strings.ReplaceAll(strings.ToLower(topic), " ", "_")
}
