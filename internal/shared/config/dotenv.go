package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// loadEnvFiles copies KEY=VALUE pairs from local dotenv files into the process
// environment. Variables already set in the environment win; unreadable files are skipped.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			continue
		}
		for _, key := range v.AllKeys() {
			name := strings.ToUpper(key)
			if _, set := os.LookupEnv(name); set {
				continue
			}
			_ = os.Setenv(name, v.GetString(key))
		}
	}
}
