package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// TemplateConfig is the file written by Template.
func TemplateConfig() FileConfig {
	def := Default()
	return FileConfig{
		Server: ServerSection{
			Address:     "localhost",
			Port:        def.Server.Port,
			Username:    "sipuser",
			Password:    "change-me",
			Location:    "",
			Institution: "",
		},
		Session: SessionSection{
			Checksum:         false,
			VerifyChecksum:   false,
			ProtocolVersion:  def.Session.ProtocolVersion,
			ConnectTimeout:   def.Session.ConnectTimeout.String(),
			ReadTimeout:      def.Session.ReadTimeout.String(),
			WriteTimeout:     def.Session.WriteTimeout.String(),
			MaxResponseBytes: def.Session.MaxResponseBytes,
			Retries:          def.Retries,
		},
		Probe: ProbeSection{
			Addr:        def.Probe.Addr,
			Interval:    def.Probe.Interval.String(),
			CorsOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Template renders TemplateConfig as TOML.
func Template() (string, error) {
	data, err := toml.Marshal(TemplateConfig())
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(data), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
