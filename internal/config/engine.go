package config

import "time"

// Engine drivers.
const (
	EngineDocker = "docker"
	EngineRemote = "remote"
)

// EngineConfig configures how the discovery engine is invoked.
type EngineConfig struct {
	Driver string `env:"DRIVER" envDefault:"docker"`

	// Timeout bounds a single discovery call; 0 disables it.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30m"`

	// Docker driver.
	Image   string  `env:"IMAGE"   envDefault:"scholarsource-crew:latest"`
	Network string  `env:"NETWORK"`
	CPU     float64 `env:"CPU"     envDefault:"1"`
	Memory  int     `env:"MEMORY"  envDefault:"1024"` // MB
	// ToolsURL is handed to the engine so it can call back into the tools
	// listener. Defaults to one derived from TOOLS_ADDR.
	ToolsURL string `env:"TOOLS_URL"`

	// Remote driver.
	URL string `env:"URL"`

	// Output extraction.
	TitlePath     string `env:"TITLE_PATH"     envDefault:"search_title"`
	ResourcesPath string `env:"RESOURCES_PATH" envDefault:"resources"`
}

// Sanitize applies guardrails to engine configuration values.
func (e *EngineConfig) Sanitize() {
	if e.Timeout < 0 {
		e.Timeout = 0
	}
	if e.CPU <= 0 {
		e.CPU = 1
	}
	if e.Memory <= 0 {
		e.Memory = 1024
	}
	if e.TitlePath == "" {
		e.TitlePath = "search_title"
	}
	if e.ResourcesPath == "" {
		e.ResourcesPath = "resources"
	}
}

// RunnerConfig sizes the background worker pool.
type RunnerConfig struct {
	Workers   int `env:"WORKERS"    envDefault:"4"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"256"`
}

// Sanitize applies guardrails to runner configuration values.
func (r *RunnerConfig) Sanitize() {
	if r.Workers <= 0 {
		r.Workers = 1
	}
	if r.QueueSize <= 0 {
		r.QueueSize = 1
	}
}
