package extension

import (
	"github.com/VTimofeenko/connect-autoapprove/internal/config"
)

// Settings are the runtime toggles of the handler. They can be swapped while
// the extension is running; each request sees one consistent snapshot.
type Settings struct {
	AssignLicense        bool
	SynthesizeParameters bool
	ApproveCancellations bool
	DryRun               bool

	// LicenseParam is the parameter id that receives the generated license.
	LicenseParam string

	// TemplateOverrides pins a template id per product id.
	TemplateOverrides map[string]string
}

// SettingsFromConfig maps the extension section of the config file.
func SettingsFromConfig(cfg config.ExtensionConfig) Settings {
	s := Settings{
		AssignLicense:        cfg.AssignLicense,
		SynthesizeParameters: cfg.SynthesizeParameters,
		ApproveCancellations: cfg.ApproveCancellations,
		DryRun:               cfg.DryRun,
		LicenseParam:         cfg.LicenseParam,
	}
	if len(cfg.TemplateOverrides) > 0 {
		s.TemplateOverrides = make(map[string]string, len(cfg.TemplateOverrides))
		for product, tpl := range cfg.TemplateOverrides {
			s.TemplateOverrides[product] = tpl
		}
	}
	return s.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.LicenseParam == "" {
		s.LicenseParam = config.DefaultLicenseParam
	}
	return s
}

func (s Settings) templateOverride(productID string) (string, bool) {
	id, ok := s.TemplateOverrides[productID]
	return id, ok && id != ""
}
