package provider

// Google defaults.
var (
	GoogleDiscoveryURL = "https://accounts.google.com/.well-known/openid-configuration"
	googleDiscovery    = Discovery{
		Issuer:                "https://accounts.google.com",
		AuthorizationEndpoint: "https://accounts.google.com/o/oauth2/v2/auth",
		TokenEndpoint:         "https://oauth2.googleapis.com/token",
	}
	googleScopes = []string{"openid", "email", "profile"}
)

// Facebook defaults.
var (
	FacebookDiscoveryURL = "https://www.facebook.com/.well-known/openid-configuration"
	facebookDiscovery    = Discovery{
		Issuer:                "https://www.facebook.com",
		AuthorizationEndpoint: "https://www.facebook.com/v19.0/dialog/oauth",
		TokenEndpoint:         "https://graph.facebook.com/v19.0/oauth/access_token",
	}
	facebookScopes = []string{"openid", "email", "public_profile"}
)

// Google returns an OpenID provider named "google". Empty endpoints and
// scopes fall back to Google's published values.
func Google(cfg Config) (*OpenID, error) {
	return NewOpenID(withDefaults(cfg, "google", googleDiscovery, googleScopes))
}

// Facebook returns an OpenID provider named "facebook". Empty endpoints and
// scopes fall back to Facebook's published values.
func Facebook(cfg Config) (*OpenID, error) {
	return NewOpenID(withDefaults(cfg, "facebook", facebookDiscovery, facebookScopes))
}

func withDefaults(cfg Config, name string, doc Discovery, scopes []string) Config {
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Discovery.AuthorizationEndpoint == "" && cfg.Discovery.TokenEndpoint == "" {
		cfg.Discovery = doc
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = append([]string(nil), scopes...)
	}
	return cfg
}
