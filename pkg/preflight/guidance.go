package preflight

import (
	"fmt"
	"strings"

	"fortuneteller/pkg/config"
)

// FormatCheckError formats a failed check with a hint on how to fix it.
func FormatCheckError(check CheckResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("  %s: %s\n", check.Target, check.Message))
	sb.WriteString(fmt.Sprintf("    %s\n", guidance(check)))
	return sb.String()
}

// FormatResults formats every result for display.
func FormatResults(results *Results) string {
	var sb strings.Builder

	if results.Passed {
		sb.WriteString("Preflight checks passed\n")
		for i := range results.Checks {
			sb.WriteString(fmt.Sprintf("  [PASS] %s: %s\n", results.Checks[i].Target, results.Checks[i].Message))
		}
		return sb.String()
	}

	sb.WriteString("Preflight checks failed\n\n")
	sb.WriteString("Failed checks:\n")
	for i := range results.Checks {
		if !results.Checks[i].Passed {
			sb.WriteString(FormatCheckError(results.Checks[i]))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("Passed checks:\n")
	for i := range results.Checks {
		if results.Checks[i].Passed {
			sb.WriteString(fmt.Sprintf("  [PASS] %s: %s\n", results.Checks[i].Target, results.Checks[i].Message))
		}
	}
	return sb.String()
}

func guidance(check CheckResult) string {
	switch check.Area {
	case AreaLLM:
		switch check.Provider {
		case config.ProviderOpenAI:
			return "Run 'fortune secrets set OPENAI_API_KEY' or export it: https://platform.openai.com/api-keys"
		case config.ProviderAnthropic:
			return "Run 'fortune secrets set ANTHROPIC_API_KEY' or export it: https://console.anthropic.com/"
		case config.ProviderGoogle:
			return "Run 'fortune secrets set GOOGLE_GENAI_API_KEY' or export it: https://aistudio.google.com/app/apikey"
		case config.ProviderBedrock:
			return "Run 'fortune secrets set AWS_ACCESS_KEY_ID' and 'fortune secrets set AWS_SECRET_ACCESS_KEY', " +
				"set AWS_BEARER_TOKEN_BEDROCK, or export AWS_PROFILE; set llm.region to the model's region."
		case config.ProviderOllama:
			model := strings.TrimPrefix(check.Target, check.Provider+"/")
			return "Start Ollama (ollama serve) or set OLLAMA_HOST, then pull the model:\n" +
				"    ollama pull " + model
		}
		return "Use --provider mock to try the system without credentials."
	case AreaSession:
		return "Start Redis and set session.redis_addr (or FORTUNE_REDIS_ADDR), or use session.backend: memory."
	case AreaStorage:
		return "Point storage settings at a writable location (FORTUNE_DB for the archive)."
	case AreaPlugins:
		return "Check plugins.enabled and each plugin's data_dir in the config file."
	default:
		return "Check the configuration file."
	}
}
