package config

const (
	defaultProvider = "ollama"
	defaultListen   = ":8080"

	defaultClientServerTarget = "http://localhost:8080"

	defaultNumWorkers = 3
	defaultQueueSize  = 256

	defaultUploadDir  = "uploads"
	defaultKafkaTopic = "parlor.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Server: ServerConfig{
			Listen: defaultListen,
		},
		Client: ClientConfig{
			ServerTarget: defaultClientServerTarget,
		},
		Agent: AgentConfig{
			Provider: defaultProvider,
		},
		Worker: WorkerConfig{
			NumWorkers: defaultNumWorkers,
			QueueSize:  defaultQueueSize,
		},
		Upload: UploadConfig{
			Dir: defaultUploadDir,
		},
		Kafka: KafkaConfig{
			Topic: defaultKafkaTopic,
		},
	}
}
