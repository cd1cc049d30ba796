package crews

import "github.com/lachopopov/multiagent-system-demo/tools/calculator"

// CalculatorAgent is the only participant of the calculator crew.
const CalculatorAgent = "calculator_agent"

const calculatorPrompt = `You are a calculator assistant. Use the provided tools to perform calculations. Always use tools for math; do not compute in your head.
When you have the answer, state it and end your reply with TERMINATE.`

// Calculator returns the single-agent calculator crew. With one participant
// the selector never calls the model.
func Calculator() Definition {
	return Definition{
		Name:        "calculator",
		Description: "Single assistant answering arithmetic questions with calculator tools.",
		Roles: []Role{
			{
				Name:         CalculatorAgent,
				Description:  "Performs arithmetic with the add, subtract, multiply, divide and power tools.",
				SystemPrompt: calculatorPrompt,
				Tools:        calculator.IDs(),
			},
		},
	}
}
