package session

import "product-rec-agent/internal/entity"

// SampleSessions returns the demo history shown in sample mode. It is never persisted.
func SampleSessions(nowMs int64) []entity.ChatSession {
	ago := func(ms int64) int64 { return nowMs - ms }

	crm := []entity.ChatMessage{
		{
			Id:        "sample-1",
			Role:      entity.RoleUser,
			Content:   "I need a CRM solution for a mid-size retail company with about 50 employees. Budget is around $300/month.",
			Timestamp: ago(120000),
		},
		{
			Id:      "sample-2",
			Role:    entity.RoleAssistant,
			Content: "Based on your requirements for a mid-size retail company with 50 employees and a $300/month budget, here are my top recommendations:",
			Recommendations: []entity.Recommendation{
				{
					ProductName:  "RetailPro CRM",
					Description:  "A comprehensive CRM designed specifically for retail businesses. Includes POS integration, customer loyalty tracking, and inventory management.",
					Price:        "$249/month",
					MatchReason:  "Perfect fit for retail with built-in POS integration and under budget at $249/month for up to 75 users.",
					Promotion:    "20% off first 3 months",
					IndustryTags: []string{"Retail", "E-commerce"},
					UseCaseTags:  []string{"Customer Management", "POS Integration", "Loyalty Programs"},
				},
				{
					ProductName:  "CloudConnect Suite",
					Description:  "All-in-one business management platform with CRM, project management, and analytics. Scalable for growing teams.",
					Price:        "$199/month",
					MatchReason:  "Cost-effective solution that covers CRM and more, well within the $300 budget with room for add-ons.",
					Promotion:    "Free onboarding session",
					IndustryTags: []string{"Retail", "Services", "General"},
					UseCaseTags:  []string{"CRM", "Analytics", "Team Collaboration"},
				},
				{
					ProductName:  "SalesForward Enterprise",
					Description:  "Advanced CRM with AI-powered customer insights, automated workflows, and multi-channel communication.",
					Price:        "$299/month",
					MatchReason:  "At the top of the budget but offers the most advanced features including AI-driven insights for customer behavior.",
					IndustryTags: []string{"Retail", "Enterprise"},
					UseCaseTags:  []string{"AI Analytics", "Automation", "Multi-channel"},
				},
			},
			FollowUpSuggestions: []string{
				"Tell me more about RetailPro CRM features",
				"Compare RetailPro and CloudConnect",
				"Any options with mobile app support?",
				"What about data migration services?",
			},
			Timestamp: ago(90000),
		},
	}

	devtools := []entity.ChatMessage{
		{
			Id:        "sample-3",
			Role:      entity.RoleUser,
			Content:   "Looking for project management tools for a 20-person engineering team",
			Timestamp: ago(600000),
		},
		{
			Id:      "sample-4",
			Role:    entity.RoleAssistant,
			Content: "For a 20-person engineering team, I recommend tools with strong agile support, code integration, and sprint planning capabilities.",
			Recommendations: []entity.Recommendation{
				{
					ProductName:  "DevTrack Pro",
					Description:  "Engineering-focused project management with Git integration, CI/CD pipeline views, and sprint analytics.",
					Price:        "$12/user/month",
					MatchReason:  "Built specifically for engineering teams with deep code repository integration.",
					Promotion:    "14-day free trial",
					IndustryTags: []string{"Technology", "Software"},
					UseCaseTags:  []string{"Agile", "Sprint Planning", "CI/CD"},
				},
			},
			FollowUpSuggestions: []string{"Compare with alternatives", "Does it support Jira import?"},
			Timestamp:           ago(580000),
		},
	}

	return []entity.ChatSession{
		{
			Id:                  "sample-session-1",
			Messages:            crm,
			CreatedAt:           ago(300000),
			UpdatedAt:           ago(90000),
			FirstMessagePreview: "CRM solution for mid-size retail company",
			RecommendationCount: 3,
			Status:              entity.SessionStatusCompleted,
		},
		{
			Id:                  "sample-session-2",
			Messages:            devtools,
			CreatedAt:           ago(600000),
			UpdatedAt:           ago(580000),
			FirstMessagePreview: "Project management tools for engineering team",
			RecommendationCount: 1,
			Status:              entity.SessionStatusCompleted,
		},
	}
}
