package driver

type Config struct {

	//Optional. It can be different for each driver.
	Endpoint    string   `mapstructure:"endpoint"`
	TopK        *float32 `mapstructure:"top_k"`
	TopP        *float32 `mapstructure:"top_p"`
	Temperature *float32 `mapstructure:"temperature"`
	MinP        *float32 `mapstructure:"min_p"`
	MaxTokens   int      `mapstructure:"max_tokens"`

	// sent as HTTP-Referer and X-Title by the openai driver, OpenRouter uses them for attribution
	Referer string `mapstructure:"referer"`
	Title   string `mapstructure:"title"`
}

func (c *Config) temperature(def float32) float32 {
	if c == nil || c.Temperature == nil {
		return def
	}
	return *c.Temperature
}

func (c *Config) maxTokens(def int) int {
	if c == nil || c.MaxTokens <= 0 {
		return def
	}
	return c.MaxTokens
}
