// Package judge — prompts.go: тексты промптов. Формулировки на английском,
// так модель стабильнее держит формат ответа.
package judge

import "fmt"

func businessPrompt(name, desc string) string {
	return "You are scoring a business idea on three criteria. " +
		"Return ONLY a compact JSON object with integer fields 'difficulty', 'earning', and 'realistic', each 0-10.\n\n" +
		fmt.Sprintf("Business Name: %s\nDescription: %s\n\n", name, desc) +
		"Rules:\n" +
		"- difficulty: Higher means harder to set up.\n" +
		"- earning: Higher means it can make more money.\n" +
		"- realistic: Higher means it's more realistic.\n" +
		"- If the description is too short or vague (fewer than 2 sentences or under 12 words), decrease all three scores to reflect low detail.\n" +
		`Output example: {"difficulty": 4, "earning": 7, "realistic": 6}`
}

func upgradePrompt(name, desc string) string {
	return "You are evaluating a game upgrade for a business's passive income. " +
		"Return ONLY a JSON object with integer fields 'realistic' and 'useful' (each 0-10).\n\n" +
		fmt.Sprintf("Upgrade Name: %s\nDescription: %s\n\n", name, desc) +
		"Rules:\n" +
		"- realistic: Higher means plausible in real life.\n" +
		"- useful: Higher means it meaningfully improves revenue.\n" +
		"- Penalize vague/short descriptions (< 2 sentences or < 12 words).\n" +
		`Example output: {"realistic": 6, "useful": 9}`
}

func detectAIPrompt(text string) string {
	return "You are an AI-text detector. Given the user's argument below, output ONLY a single integer from 0 to 100 " +
		"indicating how likely the text is AI-generated. 0 = purely human, 100 = definitely AI-generated. No words, no units.\n\n" +
		fmt.Sprintf("Argument: %s\n\nScore:", text)
}

func winnerPrompt(nameA, argA, nameB, argB string) string {
	return "Two players present marketing arguments for their businesses. " +
		"Choose the stronger argument considering clarity, persuasiveness, and alignment with a plausible business. " +
		"Respond with ONLY 'A' or 'B' to indicate the winner.\n\n" +
		fmt.Sprintf("Business A: %s \nArgument A: %s\n\n", nameA, argA) +
		fmt.Sprintf("Business B: %s \nArgument B: %s\n\n", nameB, argB) +
		"Output: A or B"
}

func explainPrompt(winnerName, loserName, nameA, argA, nameB, argB string) string {
	return fmt.Sprintf("You judged two short arguments and chose %s as stronger. ", winnerName) +
		fmt.Sprintf("In 1-2 sentences, explain why %s's argument is more convincing than %s's, ", winnerName, loserName) +
		"focusing on clarity, specificity, and business impact. Do not include labels or prefaces.\n\n" +
		fmt.Sprintf("%s: %s\n%s: %s", nameA, argA, nameB, argB)
}

func customerPrompt(mood, persona, need, bizName, bizDesc string) string {
	return fmt.Sprintf("Roleplay a %s customer persona (%s) interested in a product that is %s. ", mood, persona, need) +
		fmt.Sprintf("You're considering buying from a business called '%s'. ", bizName) +
		fmt.Sprintf("Business about: %s. ", bizDesc) +
		"In 1-2 short sentences, state your need and a hesitation or question."
}

func pitchPrompt(customer, pitch string) string {
	return "You are judging a short sales pitch in a roleplay. Given a customer statement and the seller's pitch, " +
		"respond with ONLY 'YES' if the pitch convincingly addresses the customer's need and likely leads to a purchase, otherwise 'NO'.\n\n" +
		fmt.Sprintf("Customer: %s\nPitch: %s\n\n", customer, pitch) +
		"Answer: YES or NO"
}
