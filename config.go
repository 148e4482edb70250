package auditlog

import (
	"fmt"
	"os"
	"strings"
)

// Config is the explicit, owned configuration struct built once at process
// startup from the environment and passed by value or pointer to whatever
// needs it. Nothing in this package reads os.Getenv directly outside of
// LoadConfig.
type Config struct {
	MasterSeed   MasterSeed
	DatabaseURL  string
	AdminAPIKey  string
	CORSOrigins  []string
}

// LoadConfig reads MASTER_SEED, DATABASE_URL, ADMIN_API_KEY, and
// CORS_ORIGINS from the environment. It fails fast (returning
// ErrValidation) when MASTER_SEED is missing or malformed rather than
// minting a random development seed: a log whose signing key silently
// changes across restarts is worse than a deployment that refuses to
// start. ADMIN_API_KEY, by contrast, is optional: it only gates the
// checkpoint-generation endpoint, and a deployment may intentionally run
// with that endpoint open.
func LoadConfig() (Config, error) {
	rawSeed := os.Getenv("MASTER_SEED")
	if rawSeed == "" {
		return Config{}, fmt.Errorf("%w: MASTER_SEED is not set", ErrValidation)
	}
	seed, err := ParseMasterSeed(rawSeed)
	if err != nil {
		return Config{}, err
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "auditlog.sqlite"
	}

	adminKey := os.Getenv("ADMIN_API_KEY")

	var origins []string
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				origins = append(origins, o)
			}
		}
	}

	return Config{
		MasterSeed:  seed,
		DatabaseURL: dbURL,
		AdminAPIKey: adminKey,
		CORSOrigins: origins,
	}, nil
}
