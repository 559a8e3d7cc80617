package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/voxbridgeai/pkg/configs"
)

// Application config structure
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	PostgresConfig configs.PostgresConfig `mapstructure:"postgres" validate:"required"`
	RedisConfig    configs.RedisConfig    `mapstructure:"redis" validate:"required"`

	// Upstream streaming backend (Gemini Live API).
	GoogleApiKey string `mapstructure:"google_api_key" validate:"required"`

	// Session pool defaults.
	MaxSessions          int    `mapstructure:"max_sessions" validate:"required"`
	AdmissionTimeoutSec  int    `mapstructure:"admission_timeout_sec" validate:"required"`
	SessionTimeoutSec    int    `mapstructure:"session_timeout_sec" validate:"required"`
	DefaultModel         string `mapstructure:"default_model" validate:"required"`
	DefaultVoice         string `mapstructure:"default_voice" validate:"required"`
	DefaultInstruction   string `mapstructure:"default_instruction"`
	EnableTranscription  bool   `mapstructure:"enable_transcription"`
	EnableCallRecording  bool   `mapstructure:"enable_call_recording"`
	HybridTextOutputMode bool   `mapstructure:"hybrid_text_output_mode"`

	// Gateway leg.
	GatewayAudioFormat string `mapstructure:"gateway_audio_format" validate:"required,oneof=linear16 mulaw"`
	RecordingDir       string `mapstructure:"recording_dir" validate:"required"`

	// Persistence. With persistence off the bridge runs stateless: routing
	// fails open and no interactions are recorded.
	EnablePersistence    bool `mapstructure:"enable_persistence"`
	UseRedisContextStore bool `mapstructure:"use_redis_context_store"`
	ContextTTLSec        int  `mapstructure:"context_ttl_sec" validate:"required"`
}

// reading config and intializing configs for application
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	path := os.Getenv("ENV_PATH")
	if path != "" {
		log.Printf("env path %v", path)
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)
	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("Reading from env variables.")
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	// setting all default values
	// keeping watch on https://github.com/spf13/viper/issues/188

	v.SetDefault("SERVICE_NAME", "bridge-api")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 9090)
	v.SetDefault("LOG_LEVEL", "debug")

	v.SetDefault("GOOGLE_API_KEY", "")

	v.SetDefault("MAX_SESSIONS", 10)
	v.SetDefault("ADMISSION_TIMEOUT_SEC", 10)
	v.SetDefault("SESSION_TIMEOUT_SEC", 540)
	v.SetDefault("DEFAULT_MODEL", "gemini-2.0-flash-live-001")
	v.SetDefault("DEFAULT_VOICE", "Aoede")
	v.SetDefault("DEFAULT_INSTRUCTION", "")
	v.SetDefault("ENABLE_TRANSCRIPTION", true)
	v.SetDefault("ENABLE_CALL_RECORDING", false)
	v.SetDefault("HYBRID_TEXT_OUTPUT_MODE", false)

	v.SetDefault("GATEWAY_AUDIO_FORMAT", "linear16")
	v.SetDefault("RECORDING_DIR", "./recordings")
	v.SetDefault("ENABLE_PERSISTENCE", false)
	v.SetDefault("USE_REDIS_CONTEXT_STORE", false)
	v.SetDefault("CONTEXT_TTL_SEC", 600)

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "<>")
	v.SetDefault("POSTGRES__AUTH__USER", "<>")
	v.SetDefault("POSTGRES__AUTH__PASSWORD", "<>")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)
	v.SetDefault("POSTGRES__SSL_MODE", "disable")

	v.SetDefault("REDIS__HOST", "localhost")
	v.SetDefault("REDIS__PORT", 6379)
	v.SetDefault("REDIS__PASSWORD", "")
	v.SetDefault("REDIS__DB", 0)
}

// Getting application config from viper
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var config AppConfig
	err := v.Unmarshal(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}

	// valdating the app config
	validate := validator.New()
	err = validate.Struct(&config)
	if err != nil {
		log.Printf("%+v\n", err)
		return nil, err
	}
	return &config, nil
}
