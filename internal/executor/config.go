package executor

import "time"

type Mode string

const (
	// ModeSimulate waits ItemDelay per item and changes nothing on the host.
	ModeSimulate Mode = "simulate"
	// ModeCommand runs installers and package managers and writes dotfiles.
	ModeCommand Mode = "command"
)

type Config struct {
	GRPCAddr        string            `envconfig:"EXECUTOR_GRPC_ADDR" default:"0.0.0.0:7070"`
	MetricsAddr     string            `envconfig:"EXECUTOR_METRICS_ADDR" default:"0.0.0.0:9092"`
	LogLevel        string            `envconfig:"EXECUTOR_LOG_LEVEL" default:"info"`
	Mode            Mode              `envconfig:"EXECUTOR_MODE" default:"simulate"`
	HomeDir         string            `envconfig:"EXECUTOR_HOME_DIR"`
	ItemDelay       time.Duration     `envconfig:"EXECUTOR_ITEM_DELAY" default:"500ms"`
	ItemTimeout     time.Duration     `envconfig:"EXECUTOR_ITEM_TIMEOUT" default:"600s"`
	Shell           string            `envconfig:"EXECUTOR_SHELL" default:"sh"`
	PackageCommands map[string]string `envconfig:"EXECUTOR_PACKAGE_COMMANDS"`
	ShutdownTimeout time.Duration     `envconfig:"EXECUTOR_SHUTDOWN_TIMEOUT" default:"300s"`
}

// defaultPackageCommands are used for managers PackageCommands does not name.
// {name} is replaced with the package name.
var defaultPackageCommands = map[string]string{
	"npm":   "npm install -g {name}",
	"pip":   "pip install {name}",
	"pipx":  "pipx install {name}",
	"brew":  "brew install {name}",
	"cargo": "cargo install {name}",
	"go":    "go install {name}",
	"gem":   "gem install {name}",
	"apt":   "apt-get install -y {name}",
}

func (c Config) packageCommand(manager string) (string, bool) {
	if cmd, ok := c.PackageCommands[manager]; ok {
		return cmd, true
	}
	cmd, ok := defaultPackageCommands[manager]
	return cmd, ok
}
