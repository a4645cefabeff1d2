package flags

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	v1 "github.com/prradar/prradar/pkg/apis/config/v1"
)

// ConfigFlags holds the location of the optional configuration file.
type ConfigFlags struct {
	Path string
}

func NewConfigFlags() *ConfigFlags {
	return &ConfigFlags{}
}

func (f *ConfigFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Path,
		"config",
		f.Path,
		"Configuration file for analyzer tuning (critical paths, concurrency, report TTL)")
}

// LoadConfig reads the config file, or returns defaults when none is given.
func (f *ConfigFlags) LoadConfig() *v1.RadarConfig {
	var config v1.RadarConfig

	if f.Path != "" {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			log.WithError(err).Fatalf("could not load config")
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			log.WithError(err).Fatalf("could not unmarshal config")
		}
	}

	config.Analyzer = config.Analyzer.WithDefaults()
	return &config
}
