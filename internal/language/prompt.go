package language

import "github.com/kalambet/jobassist/internal/engine"

const classifySystemPrompt = `You route messages for a WhatsApp job assistant that helps blue-collar and entry-level workers in India find jobs.

Classify the user's message into exactly one label:
- ONBOARDING: the user is greeting, or giving their name, city or the kind of work they do for the first time.
- UPDATE_PROFILE: the user wants to change something already in their profile (a new city, a different job, a salary expectation).
- JOB_SEARCH: the user wants to see jobs, openings or vacancies.
- GENERAL_QA: anything else, such as questions about salaries, documents, interviews or resumes.

Respond with JSON: {"intent": "<LABEL>"}`

const extractSystemPrompt = `You read messages from job seekers and pull out profile details.

Return JSON with only the keys you can find in the message:
- "name": the person's name
- "city": the city where they want to work
- "skills": a list of job roles or skills, written as short job titles
- "expected_salary": monthly salary expectation as digits, with "k" expanded (20k = 20000)

Example: "My name is Rahul, I drive a truck in Mumbai, expecting 20k"
{"name": "Rahul", "city": "Mumbai", "skills": ["Truck Driver"], "expected_salary": "20000"}

Omit keys that are not mentioned. Return {} if nothing is found.`

const answerSystemPrompt = `You are JobAssistant, a friendly career adviser on WhatsApp for workers in India looking for jobs such as driving, delivery, security, retail and office support.
Answer in at most four short sentences of plain text. Be practical and specific to the Indian job market. Do not invent job listings; suggest typing 'Find Jobs' when the user wants openings.`

func intentSchema() *engine.Schema {
	labels := make([]string, len(Intents))
	for i, in := range Intents {
		labels[i] = string(in)
	}
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"intent": {Type: "string", Description: "The message intent", Enum: labels},
		},
		Required: []string{"intent"},
	}
}

func fieldsSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"name":            {Type: "string", Description: "The person's name"},
			"city":            {Type: "string", Description: "City where the person wants to work"},
			"skills":          {Type: "array", Description: "Job roles or skills", Items: &engine.Schema{Type: "string"}},
			"expected_salary": {Type: "string", Description: "Monthly salary expectation in rupees"},
		},
	}
}

func buildClassifyPrompt(text string) []engine.Message {
	return []engine.Message{
		{Role: engine.RoleSystem, Content: classifySystemPrompt},
		{Role: engine.RoleUser, Content: text},
	}
}

func buildExtractPrompt(text string) []engine.Message {
	return []engine.Message{
		{Role: engine.RoleSystem, Content: extractSystemPrompt},
		{Role: engine.RoleUser, Content: text},
	}
}
