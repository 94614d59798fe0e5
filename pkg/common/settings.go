package common

// Settings are the global, user-editable credentials and model choices.
type Settings struct {
	LLMProvider     string `json:"llmProvider"`
	APIKey          string `json:"apiKey"`
	Endpoint        string `json:"endpoint"`
	Model           string `json:"model"`
	GoogleAPIKey    string `json:"googleApiKey"`
	GoogleCX        string `json:"googleCx"`
	FirecrawlAPIKey string `json:"firecrawlApiKey"`
}

// DefaultSettings returns the settings used before the user saved any.
func DefaultSettings() Settings {
	return Settings{
		LLMProvider: "openai",
		Endpoint:    "https://api.openai.com",
		Model:       "gpt-4o",
	}
}

// WithDefaults fills empty fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.LLMProvider == "" {
		s.LLMProvider = d.LLMProvider
	}
	if s.Endpoint == "" {
		s.Endpoint = d.Endpoint
	}
	if s.Model == "" {
		s.Model = d.Model
	}
	return s
}
