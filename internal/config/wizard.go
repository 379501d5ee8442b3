package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to copilot.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to the LifeLink copilot! Let's configure the service.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{"openai", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)
	preset := GetPreset(provider)

	modelPrompt := promptui.Prompt{
		Label:   "Chat model",
		Default: preset.Model,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	backendPrompt := promptui.Prompt{
		Label:   "Operational backend URL",
		Default: cfg.Backend.URL,
	}
	backendURL, err := backendPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("backend url: %w", err)
	}

	addrPrompt := promptui.Prompt{
		Label:   "Listen address",
		Default: cfg.Server.Addr,
	}
	addr, err := addrPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("listen address: %w", err)
	}

	dbPrompt := promptui.Prompt{
		Label:   "SQLite database path",
		Default: cfg.Database.Path,
	}
	dbPath, err := dbPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}

	workersPrompt := promptui.Prompt{
		Label:   "Background workers",
		Default: strconv.Itoa(cfg.Worker.Workers),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return fmt.Errorf("must be a non-negative integer")
			}
			return nil
		},
	}
	workersStr, err := workersPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("workers: %w", err)
	}
	workers, _ := strconv.Atoi(workersStr)

	cfg.LLM = LLMConfig{Provider: provider, Model: model}
	cfg.Embedding = EmbeddingConfig{Provider: provider, Model: preset.EmbeddingModel}
	cfg.Backend.URL = backendURL
	cfg.Server.Addr = addr
	cfg.Database.Path = dbPath
	cfg.Worker.Workers = workers

	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running copilot serve.\n", envVar)
	}

	configPath := "copilot.yml"
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", configPath)
	return cfg, nil
}
