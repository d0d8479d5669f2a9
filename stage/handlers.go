package stage

import (
	"strings"

	"github.com/PAIR-code/deliberate-lab-sub006/experiment"
	"github.com/PAIR-code/deliberate-lab-sub006/structured"
)

func surveyHandler() Handler {
	return Handler{
		ResolveVariables: resolveSurveyVariables,
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: true, MoveToNextStage: true}
		},
		ExtractAnswer: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig, _ *experiment.PromptConfig, parsed any) *experiment.StageAnswer {
			if stage.Survey == nil {
				return nil
			}
			answers := structured.ParseSurveyResponse(stage.Survey.Questions, parsed)
			if len(answers) == 0 {
				return nil
			}
			return &experiment.StageAnswer{
				StageID:       stage.ID,
				Kind:          stage.Kind,
				SurveyAnswers: answers,
			}
		},
		DefaultPrompt: func(stage *experiment.StageConfig) *experiment.PromptConfig {
			config := basePrompt(stage, "Please answer the survey questions above. Answer every question.")
			if stage.Survey != nil {
				config.StructuredOutputConfig = &experiment.StructuredOutputConfig{
					Enabled:        true,
					Type:           experiment.StructuredOutputTypeJSONFormat,
					AppendToPrompt: true,
					Schema:         structured.SurveySchema(stage.Survey.Questions),
				}
			}
			return config
		},
		DisplayForPrompt: surveyDisplay,
	}
}

func surveyPerParticipantHandler() Handler {
	return Handler{
		ResolveVariables: resolveSurveyVariables,
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: true, MoveToNextStage: true}
		},
		ExtractAnswer: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig, _ *experiment.PromptConfig, parsed any) *experiment.StageAnswer {
			if stage.Survey == nil {
				return nil
			}
			answers := structured.ParsePerParticipantResponse(stage.Survey.Questions, parsed)
			if len(answers) == 0 {
				return nil
			}
			return &experiment.StageAnswer{
				StageID:               stage.ID,
				Kind:                  stage.Kind,
				PerParticipantAnswers: answers,
			}
		},
		DefaultPrompt: func(stage *experiment.StageConfig) *experiment.PromptConfig {
			config := basePrompt(stage, "Please answer every survey question above once per listed participant.")
			if stage.Survey != nil {
				config.StructuredOutputConfig = &experiment.StructuredOutputConfig{
					Enabled:        true,
					Type:           experiment.StructuredOutputTypeJSONFormat,
					AppendToPrompt: true,
					Schema:         structured.PerParticipantSurveySchema(stage.Survey.Questions),
				}
			}
			return config
		},
		DisplayForPrompt: surveyPerParticipantDisplay,
	}
}

func rankingHandler() Handler {
	return Handler{
		ResolveVariables: resolveRankingVariables,
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: true, MoveToNextStage: true}
		},
		ExtractAnswer: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig, _ *experiment.PromptConfig, parsed any) *experiment.StageAnswer {
			object, ok := parsed.(map[string]any)
			if !ok {
				return nil
			}
			rawList, ok := object["rankingList"].([]any)
			if !ok {
				return nil
			}
			list := make([]string, 0, len(rawList))
			for _, entry := range rawList {
				id, ok := entry.(string)
				if !ok {
					return nil
				}
				list = append(list, id)
			}
			if len(list) == 0 {
				return nil
			}
			return &experiment.StageAnswer{
				StageID:     stage.ID,
				Kind:        stage.Kind,
				RankingList: list,
			}
		},
		DefaultPrompt: func(stage *experiment.StageConfig) *experiment.PromptConfig {
			subject := "participant IDs"
			if stage.Ranking != nil && stage.Ranking.RankingType == experiment.RankingTypeItems {
				subject = "item IDs"
			}
			config := basePrompt(stage, "Please rank the options above from best to worst.")
			config.StructuredOutputConfig = &experiment.StructuredOutputConfig{
				Enabled:        true,
				Type:           experiment.StructuredOutputTypeJSONFormat,
				AppendToPrompt: true,
				Schema: &experiment.StructuredOutputSchema{
					Type: experiment.DataTypeObject,
					Properties: []experiment.SchemaProperty{
						{
							Name: "rankingList",
							Schema: &experiment.StructuredOutputSchema{
								Type:        experiment.DataTypeArray,
								Description: "The " + subject + " in ranked order, best first.",
								ArrayItems: &experiment.StructuredOutputSchema{
									Type: experiment.DataTypeString,
								},
							},
						},
					},
				},
			}
			return config
		},
		DisplayForPrompt: rankingDisplay,
	}
}

func chatHandler() Handler {
	return Handler{
		// Conversational stages are trigger driven; the orchestrator hands
		// them to the turn coordinator instead of calling the model here, and
		// advancement is controlled outside the engine.
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: false, MoveToNextStage: false}
		},
		ExtractAnswer: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig, promptConfig *experiment.PromptConfig, parsed any) *experiment.StageAnswer {
			outputConfig := structured.DefaultChatConfig()
			if promptConfig != nil && promptConfig.StructuredOutputConfig != nil {
				outputConfig = promptConfig.StructuredOutputConfig
			}
			fields := structured.ExtractChatFields(parsed, outputConfig)
			if !fields.ReadyToEndChat {
				return nil
			}
			return &experiment.StageAnswer{
				StageID:        stage.ID,
				Kind:           stage.Kind,
				ReadyToEndChat: true,
			}
		},
		DefaultPrompt: func(stage *experiment.StageConfig) *experiment.PromptConfig {
			config := &experiment.PromptConfig{
				ID:        stage.ID,
				StageKind: stage.Kind,
				Prompt: []experiment.PromptItem{
					experiment.ProfileInfoItem{},
					experiment.ProfileContextItem{},
					experiment.StageContextItem{
						StageID:             stage.ID,
						IncludePrimaryText:  true,
						IncludeStageDisplay: true,
					},
					experiment.TextItem{Text: "Decide whether to send a chat message now."},
				},
				GenerationConfig:       experiment.DefaultGenerationConfig(),
				StructuredOutputConfig: structured.DefaultChatConfig(),
			}
			if stage.Chat != nil {
				settings := stage.Chat.ChatSettings
				config.ChatSettings = &settings
			}
			return config
		},
		DisplayForPrompt: chatDisplay,
	}
}

func profileHandler() Handler {
	return Handler{
		// Anonymous profiles use pre-assigned aliases, so the agent just
		// acknowledges. Any other profile type asks the model to pick a
		// name, emoji avatar and pronouns.
		AgentActions: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig) AgentActions {
			if stage.Profile != nil && stage.Profile.ProfileType == experiment.ProfileTypeAnonymous {
				return AgentActions{CallAPI: false, MoveToNextStage: true}
			}
			return AgentActions{CallAPI: true, MoveToNextStage: true}
		},
		ExtractAnswer: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig, _ *experiment.PromptConfig, parsed any) *experiment.StageAnswer {
			object, ok := parsed.(map[string]any)
			if !ok {
				return nil
			}
			answer := &experiment.StageAnswer{StageID: stage.ID, Kind: stage.Kind}
			filled := false
			if v, ok := object["name"].(string); ok && strings.TrimSpace(v) != "" {
				answer.ProfileName = strings.TrimSpace(v)
				filled = true
			}
			if v, ok := object["emoji"].(string); ok && strings.TrimSpace(v) != "" {
				answer.ProfileAvatar = strings.TrimSpace(v)
				filled = true
			}
			if v, ok := object["pronouns"].(string); ok && strings.TrimSpace(v) != "" {
				answer.ProfilePronouns = strings.TrimSpace(v)
				filled = true
			}
			if !filled {
				return nil
			}
			return answer
		},
		DefaultPrompt: func(stage *experiment.StageConfig) *experiment.PromptConfig {
			config := basePrompt(stage, "Please fill out your profile name, emoji, and pronouns.")
			config.StructuredOutputConfig = &experiment.StructuredOutputConfig{
				Enabled:        true,
				Type:           experiment.StructuredOutputTypeJSONFormat,
				AppendToPrompt: true,
				Schema: &experiment.StructuredOutputSchema{
					Type: experiment.DataTypeObject,
					Properties: []experiment.SchemaProperty{
						{
							Name: "name",
							Schema: &experiment.StructuredOutputSchema{
								Type:        experiment.DataTypeString,
								Description: "Your name",
							},
						},
						{
							Name: "emoji",
							Schema: &experiment.StructuredOutputSchema{
								Type:        experiment.DataTypeString,
								Description: "A single emoji to be used as your avatar",
							},
						},
						{
							Name: "pronouns",
							Schema: &experiment.StructuredOutputSchema{
								Type:        experiment.DataTypeString,
								Description: "Your pronouns (either she/her, he/him, they/them, or something else similar)",
							},
						},
					},
				},
			}
			return config
		},
	}
}

func transferHandler() Handler {
	return Handler{
		// Transfers are experimenter driven; the agent must sit still until
		// it is moved.
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: false, MoveToNextStage: false}
		},
	}
}

func roleHandler() Handler {
	return Handler{
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: false, MoveToNextStage: true}
		},
	}
}

func stockInfoHandler() Handler {
	return Handler{
		ResolveVariables: resolveStockInfoVariables,
		DisplayForPrompt: stockInfoDisplay,
	}
}

func flipCardHandler() Handler {
	return Handler{
		ResolveVariables: resolveFlipCardVariables,
		DisplayForPrompt: flipCardDisplay,
	}
}

func assetAllocationHandler() Handler {
	return Handler{
		AgentActions: func(*experiment.ParticipantProfile, *experiment.StageConfig) AgentActions {
			return AgentActions{CallAPI: true, MoveToNextStage: true}
		},
		ExtractAnswer: func(_ *experiment.ParticipantProfile, stage *experiment.StageConfig, _ *experiment.PromptConfig, parsed any) *experiment.StageAnswer {
			object, ok := parsed.(map[string]any)
			if !ok {
				return nil
			}
			percent, ok := object["assetAPercent"].(float64)
			if !ok || percent < 0 || percent > 100 {
				return nil
			}
			return &experiment.StageAnswer{
				StageID:       stage.ID,
				Kind:          stage.Kind,
				AssetAPercent: percent,
			}
		},
		DefaultPrompt: func(stage *experiment.StageConfig) *experiment.PromptConfig {
			description := "The percentage of the portfolio, from 0 to 100, to allocate to the first asset."
			if stage.AssetAllocation != nil {
				description = "The percentage of the portfolio, from 0 to 100, to allocate to " + stage.AssetAllocation.AssetA + "; the remainder goes to " + stage.AssetAllocation.AssetB + "."
			}
			config := basePrompt(stage, "Please decide how to split the portfolio between the two assets above.")
			config.StructuredOutputConfig = &experiment.StructuredOutputConfig{
				Enabled:        true,
				Type:           experiment.StructuredOutputTypeJSONFormat,
				AppendToPrompt: true,
				Schema: &experiment.StructuredOutputSchema{
					Type: experiment.DataTypeObject,
					Properties: []experiment.SchemaProperty{
						{
							Name: "assetAPercent",
							Schema: &experiment.StructuredOutputSchema{
								Type:        experiment.DataTypeNumber,
								Description: description,
							},
						},
					},
				},
			}
			return config
		},
		DisplayForPrompt: assetAllocationDisplay,
	}
}

// basePrompt is the shared single-shot layout: identity, persona, the
// current stage's display, then a kind-specific instruction.
func basePrompt(stage *experiment.StageConfig, instruction string) *experiment.PromptConfig {
	return &experiment.PromptConfig{
		ID:        stage.ID,
		StageKind: stage.Kind,
		Prompt: []experiment.PromptItem{
			experiment.ProfileInfoItem{},
			experiment.ProfileContextItem{},
			experiment.StageContextItem{
				StageID:             stage.ID,
				IncludePrimaryText:  true,
				IncludeInfoText:     true,
				IncludeStageDisplay: true,
			},
			experiment.TextItem{Text: instruction},
		},
		GenerationConfig: experiment.DefaultGenerationConfig(),
	}
}

func resolveSurveyVariables(stage experiment.StageConfig, values map[string]string) experiment.StageConfig {
	stage = defaultResolveVariables(stage, values)
	if stage.Survey == nil {
		return stage
	}
	payload := *stage.Survey
	payload.Questions = make([]experiment.SurveyQuestion, len(stage.Survey.Questions))
	for i, question := range stage.Survey.Questions {
		question.Title = substituteVariables(question.Title, values)
		payload.Questions[i] = question
	}
	stage.Survey = &payload
	return stage
}

func resolveRankingVariables(stage experiment.StageConfig, values map[string]string) experiment.StageConfig {
	stage = defaultResolveVariables(stage, values)
	if stage.Ranking == nil {
		return stage
	}
	payload := *stage.Ranking
	payload.Items = make([]experiment.RankingItem, len(stage.Ranking.Items))
	for i, item := range stage.Ranking.Items {
		item.Text = substituteVariables(item.Text, values)
		payload.Items[i] = item
	}
	stage.Ranking = &payload
	return stage
}

func resolveStockInfoVariables(stage experiment.StageConfig, values map[string]string) experiment.StageConfig {
	stage = defaultResolveVariables(stage, values)
	if stage.StockInfo == nil {
		return stage
	}
	payload := *stage.StockInfo
	payload.StockIDs = make([]string, len(stage.StockInfo.StockIDs))
	for i, id := range stage.StockInfo.StockIDs {
		payload.StockIDs[i] = substituteVariables(id, values)
	}
	stage.StockInfo = &payload
	return stage
}

func resolveFlipCardVariables(stage experiment.StageConfig, values map[string]string) experiment.StageConfig {
	stage = defaultResolveVariables(stage, values)
	if stage.FlipCard == nil {
		return stage
	}
	payload := *stage.FlipCard
	payload.Cards = make([]experiment.FlipCard, len(stage.FlipCard.Cards))
	for i, card := range stage.FlipCard.Cards {
		card.FrontText = substituteVariables(card.FrontText, values)
		card.BackText = substituteVariables(card.BackText, values)
		payload.Cards[i] = card
	}
	stage.FlipCard = &payload
	return stage
}
