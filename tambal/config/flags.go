package config

import "github.com/spf13/pflag"

const (
	FLAG_PROVIDER_KEY      = "p_key"
	FLAG_PROVIDER_ENDPOINT = "p_addr"
	FLAG_PROVIDER_NAME     = "p_name"
	FLAG_PROVIDER_MODELS   = "p_models"

	FLAG_SERVER_ADDRESS     = "addr"
	FLAG_SERVER_DEBUG       = "debug"
	FLAG_SERVER_CONFIG_FILE = "config"

	FLAG_STORE_PATH = "db"
	FLAG_BOT_ENABLE = "bot"

	FLAG_OBSERVE_ENABLE = "observe"
)

// Defined set of flags for tambal configuration use.
var FlagSet = pflag.NewFlagSet("Tambal_Flags", pflag.PanicOnError)

var flagToConfigKeyMap = map[string]string{
	FLAG_PROVIDER_KEY:      "provider.apikey",
	FLAG_PROVIDER_ENDPOINT: "provider.endpoint",
	FLAG_PROVIDER_NAME:     "provider.name",
	FLAG_PROVIDER_MODELS:   "provider.models",

	FLAG_SERVER_ADDRESS: "server.address",
	FLAG_SERVER_DEBUG:   "server.debug",

	FLAG_STORE_PATH: "store.path",
	FLAG_BOT_ENABLE: "bot.enable",

	FLAG_OBSERVE_ENABLE: "observability.enable",
}

func init() {
	DefineFlags(FlagSet)
}

// DefineFlags registers every configuration flag on fs.
func DefineFlags(fs *pflag.FlagSet) {
	// server
	fs.String(FLAG_SERVER_ADDRESS, "", "server address")
	fs.Bool(FLAG_SERVER_DEBUG, false, "debug log")
	fs.String(FLAG_SERVER_CONFIG_FILE, "", "path to config file")

	// provider
	fs.String(FLAG_PROVIDER_KEY, "", "provider's api key")
	fs.String(FLAG_PROVIDER_ENDPOINT, "", "provider's base url")
	fs.String(FLAG_PROVIDER_NAME, "", "provider's name (openai, ollama, genai)")
	fs.StringSlice(FLAG_PROVIDER_MODELS, nil, "candidate models in priority order")

	// storage
	fs.String(FLAG_STORE_PATH, "", "sqlite database file")

	// telegram
	fs.Bool(FLAG_BOT_ENABLE, false, "run the telegram bot")

	//observe
	fs.Bool(FLAG_OBSERVE_ENABLE, false, "enable observability default false")
}
