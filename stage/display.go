package stage

import (
	"fmt"
	"strings"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
)

// surveyDisplay renders the question list plus, per participant with an
// answer, one line per answered question.
func surveyDisplay(participants []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if data.Stage.Survey == nil {
		return ""
	}
	var b strings.Builder
	if includeScaffolding {
		b.WriteString("Survey questions:\n")
	}
	for _, question := range data.Stage.Survey.Questions {
		fmt.Fprintf(&b, "- %s\n", question.Title)
	}
	for _, participant := range participants {
		answer, ok := data.Answers[participant.PublicID]
		if !ok || len(answer.SurveyAnswers) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Answers from %s:\n", participant.DisplayName())
		for _, question := range data.Stage.Survey.Questions {
			if a, ok := answer.SurveyAnswers[question.ID]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", question.Title, formatSurveyAnswer(question, a))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// surveyPerParticipantDisplay renders each question with the answers given
// about every participant.
func surveyPerParticipantDisplay(participants []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if data.Stage.Survey == nil {
		return ""
	}
	var b strings.Builder
	if includeScaffolding {
		b.WriteString("Questions to answer about each participant:\n")
	}
	for _, question := range data.Stage.Survey.Questions {
		fmt.Fprintf(&b, "- %s\n", question.Title)
	}
	if includeScaffolding && len(participants) > 0 {
		b.WriteString("Participants:\n")
		for _, participant := range participants {
			fmt.Fprintf(&b, "- %s (%s)\n", participant.DisplayName(), participant.PublicID)
		}
	}
	for _, participant := range participants {
		answer, ok := data.Answers[participant.PublicID]
		if !ok || len(answer.PerParticipantAnswers) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Answers from %s:\n", participant.DisplayName())
		for _, question := range data.Stage.Survey.Questions {
			perParticipant, ok := answer.PerParticipantAnswers[question.ID]
			if !ok {
				continue
			}
			for aboutID, a := range perParticipant {
				fmt.Fprintf(&b, "- %s, about %s: %s\n", question.Title, aboutID, formatSurveyAnswer(question, a))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSurveyAnswer(question experiment.SurveyQuestion, answer experiment.SurveyAnswer) string {
	switch question.Kind {
	case experiment.SurveyQuestionKindText:
		return answer.Text
	case experiment.SurveyQuestionKindCheck:
		if answer.IsChecked {
			return "yes"
		}
		return "no"
	case experiment.SurveyQuestionKindMultipleChoice:
		for _, option := range question.Options {
			if option.ID == answer.ChoiceID {
				return option.Text
			}
		}
		return answer.ChoiceID
	case experiment.SurveyQuestionKindScale:
		return fmt.Sprintf("%v", answer.Value)
	default:
		return ""
	}
}

// rankingDisplay renders the rankable options and the rankings already
// submitted.
func rankingDisplay(participants []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if data.Stage.Ranking == nil {
		return ""
	}
	var b strings.Builder
	if data.Stage.Ranking.RankingType == experiment.RankingTypeItems {
		if includeScaffolding {
			b.WriteString("Items to rank:\n")
		}
		for _, item := range data.Stage.Ranking.Items {
			fmt.Fprintf(&b, "- %s: %s\n", item.ID, item.Text)
		}
	} else {
		if includeScaffolding {
			b.WriteString("Participants to rank:\n")
		}
		for _, participant := range participants {
			fmt.Fprintf(&b, "- %s: %s\n", participant.PublicID, participant.DisplayName())
		}
	}
	for _, participant := range participants {
		answer, ok := data.Answers[participant.PublicID]
		if !ok || len(answer.RankingList) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Ranking from %s (best first): %s\n", participant.DisplayName(), strings.Join(answer.RankingList, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// chatDisplay renders the conversation so far, one line per message.
func chatDisplay(participants []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if len(data.ChatMessages) == 0 {
		if includeScaffolding {
			return "No messages yet."
		}
		return ""
	}
	names := make(map[string]string, len(participants))
	for _, participant := range participants {
		names[participant.PublicID] = participant.DisplayName()
	}
	var b strings.Builder
	if includeScaffolding {
		b.WriteString("Conversation so far:\n")
	}
	for _, message := range data.ChatMessages {
		name := names[message.SenderID]
		if name == "" {
			name = message.SenderID
		}
		fmt.Fprintf(&b, "%s: %s\n", name, message.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func stockInfoDisplay(_ []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if data.Stage.StockInfo == nil || len(data.Stage.StockInfo.StockIDs) == 0 {
		return ""
	}
	if includeScaffolding {
		return "Stocks shown: " + strings.Join(data.Stage.StockInfo.StockIDs, ", ")
	}
	return strings.Join(data.Stage.StockInfo.StockIDs, ", ")
}

func flipCardDisplay(_ []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if data.Stage.FlipCard == nil {
		return ""
	}
	var b strings.Builder
	if includeScaffolding {
		b.WriteString("Cards:\n")
	}
	for _, card := range data.Stage.FlipCard.Cards {
		fmt.Fprintf(&b, "- %s / %s\n", card.FrontText, card.BackText)
	}
	return strings.TrimRight(b.String(), "\n")
}

func assetAllocationDisplay(participants []experiment.ParticipantProfile, data *ContextData, includeScaffolding bool) string {
	if data.Stage.AssetAllocation == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Assets: %s and %s\n", data.Stage.AssetAllocation.AssetA, data.Stage.AssetAllocation.AssetB)
	for _, participant := range participants {
		answer, ok := data.Answers[participant.PublicID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "Allocation from %s: %v%% in %s\n", participant.DisplayName(), answer.AssetAPercent, data.Stage.AssetAllocation.AssetA)
	}
	return strings.TrimRight(b.String(), "\n")
}
