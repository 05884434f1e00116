package antispam

import (
	"strings"
	"time"

	"cleantalk-antispam/internal/common/config"

	"golang.org/x/text/language"
)

// DefaultJSChallengeSalt is mixed into the JS challenge hash when no
// deployment-specific salt is configured. Changing it invalidates every
// challenge already rendered into a form.
const DefaultJSChallengeSalt = "cleantalk-antispam/js-challenge/v1"

const defaultResponseLang = "en"

type Config struct {
	APIKey string
	APIURL string
	// ResponseLang is the two-letter language of remote comments. When empty
	// it is derived from AppLanguage.
	ResponseLang    string
	AppLanguage     string
	EnableLog       bool
	JSChallengeSalt string
	Timeout         time.Duration
}

func DefaultConfig() Config {
	return Config{
		APIURL:          config.DefaultAPIURL,
		EnableLog:       true,
		JSChallengeSalt: DefaultJSChallengeSalt,
		Timeout:         config.GetDuration(config.DefaultCleantalkTimeout),
	}
}

// ConfigFromApp maps the loaded application config onto the component config.
func ConfigFromApp(cfg *config.Config) Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}

	out.APIKey = cfg.Cleantalk.APIKey
	if cfg.Cleantalk.APIURL != "" {
		out.APIURL = cfg.Cleantalk.APIURL
	}
	out.ResponseLang = cfg.Cleantalk.ResponseLang
	out.AppLanguage = cfg.App.Language
	out.EnableLog = cfg.Cleantalk.LogEnabled()
	if cfg.Cleantalk.JSChallengeSalt != "" {
		out.JSChallengeSalt = cfg.Cleantalk.JSChallengeSalt
	}
	if cfg.Cleantalk.Timeout > 0 {
		out.Timeout = config.GetDuration(cfg.Cleantalk.Timeout)
	}
	return out
}

// resolveResponseLang returns the configured language or the two-letter base
// language of the application locale, falling back to English. Bases without
// an ISO 639-1 code, such as fil, also fall back.
func resolveResponseLang(responseLang, appLanguage string) string {
	if responseLang != "" {
		return responseLang
	}
	if appLanguage == "" {
		return defaultResponseLang
	}

	tag, err := language.Parse(appLanguage)
	if err != nil {
		return defaultResponseLang
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return defaultResponseLang
	}
	code := strings.ToLower(base.String())
	if len(code) != 2 {
		return defaultResponseLang
	}
	return code
}
