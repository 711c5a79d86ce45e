package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// WithEnv applies environment variable overrides. Variables that are unset
// keep the value already on the config. When PROFILES_FILE is set the
// profiles it lists replace any configured so far.
//
// The full variable list is printed by EnvUsage.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		if c.ProfilesFile != "" {
			profiles, err := readProfiles(c.ProfilesFile)
			if err != nil {
				return err
			}
			c.Profiles = profiles
		}
		return nil
	}
}

// EnvUsage describes the environment variables understood by WithEnv
func EnvUsage() string {
	var cfg ServerConfig
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

// profileFile is the document layout of a profiles file:
//
//	types:
//	  - key: avatar
//	    kind: photo
//	    dir: avatar
//	    ...
type profileFile struct {
	Types []simplemedia.TypeProfile `yaml:"types" json:"types"`
}

func readProfiles(path string) ([]simplemedia.TypeProfile, error) {
	var file profileFile
	if err := cleanenv.ReadConfig(path, &file); err != nil {
		return nil, fmt.Errorf("failed to read profiles file %s: %w", path, err)
	}
	if len(file.Types) == 0 {
		return nil, fmt.Errorf("profiles file %s defines no types", path)
	}
	return file.Types, nil
}
