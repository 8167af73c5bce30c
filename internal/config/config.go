package config // config loads application configuration from environment variables

import (
    "log"
    "os"
    "strconv"
)

// Config holds all runtime configuration values.  Each field
// corresponds to an environment variable.  Venue fields feed the
// scheduler's settings and are passed into the series manager
// explicitly rather than read from ambient state.
type Config struct {
    Env            string // application environment (e.g. "dev", "prod")
    Port           string // HTTP port to listen on
    DBUser         string // database username
    DBPass         string // database password (optional)
    DBHost         string // database host address
    DBPort         string // database port number
    DBName         string // database name
    JWTSecret      string // secret used to sign JWTs
    AccessTTLMin   int    // access token time-to-live in minutes
    RefreshTTLDays int    // refresh token time-to-live in days
    BcryptCost     int    // bcrypt cost for password hashing
    VenueOpen      string // earliest bookable time of day, HH:MM (empty = unrestricted)
    VenueClose     string // latest bookable time of day, HH:MM (empty = unrestricted)
    MaxOccurrences int    // cap on how many dates one recurrence rule may expand into
}

// Load reads configuration from environment variables.  Required
// variables are enforced by must(); missing values exit with a fatal
// log message.
func Load() Config {
    return Config{
        Env:            must("APP_ENV"),
        Port:           must("APP_PORT"),
        DBUser:         must("DB_USER"),
        DBPass:         os.Getenv("DB_PASS"), // empty allowed
        DBHost:         must("DB_HOST"),
        DBPort:         must("DB_PORT"),
        DBName:         must("DB_NAME"),
        JWTSecret:      must("JWT_SECRET"),
        AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
        RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
        BcryptCost:     mustInt("BCRYPT_COST"),
        VenueOpen:      os.Getenv("VENUE_OPEN"),
        VenueClose:     os.Getenv("VENUE_CLOSE"),
        MaxOccurrences: envInt("MAX_RULE_OCCURRENCES", 500),
    }
}

// must retrieves a required environment variable or exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        log.Fatalf("missing required env var: %s", key)
    }
    return v
}

// mustInt is like must() but converts the value to an integer.
func mustInt(key string) int {
    s := must(key)
    n, err := strconv.Atoi(s)
    if err != nil {
        log.Fatalf("invalid int for %s: %q", key, s)
    }
    return n
}

func envInt(key string, def int) int {
    v := os.Getenv(key)
    if v == "" {
        return def
    }
    if n, err := strconv.Atoi(v); err == nil {
        return n
    }
    return def
}
