package knock

import (
	"fmt"
	"golang.org/x/text/cases"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvApiKey       = "KNOCK_API_KEY"
	EnvApiUrl       = "KNOCK_API_URL"
	EnvHttpTimeout  = "KNOCK_HTTP_TIMEOUT"
	EnvParser       = "KNOCK_PARSER"
	EnvDbHost       = "DB_HOST"
	EnvDbPort       = "DB_PORT"
	EnvDbName       = "DB_NAME"
	EnvDbUser       = "DB_USER"
	EnvDbPassword   = "DB_PASSWORD"
	EnvDbSslMode    = "DB_SSLMODE"
	EnvEmailDomains = "SYNC_EMAIL_DOMAINS"
	EnvLogDir       = "SYNC_LOG_DIR"
	EnvKsmConfig    = "KSM_CONFIG_BASE64"
	EnvKsmRecordUid = "KSM_RECORD_UID"
)

const (
	DefaultApiUrl       = "https://api.knock.app/v1"
	DefaultHttpTimeout  = 30 * time.Second
	DefaultDbPort       = 5432
	DefaultEmailDomains = "@rentpure.com"
	DefaultLogDir       = "logs"
	ParserStructured    = "structured"
	ParserPattern       = "pattern"
)

type DatabaseParameters struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SslMode  string
}

// Dsn returns the lib/pq connection URL
func (d DatabaseParameters) Dsn() string {
	var uri = url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if len(d.SslMode) > 0 {
		var q = url.Values{}
		q.Set("sslmode", d.SslMode)
		uri.RawQuery = q.Encode()
	}
	return uri.String()
}

type KnockParameters struct {
	ApiUrl  string
	ApiKey  string
	Timeout time.Duration
	Parser  string
}

// Config is built once at startup and handed to every stage.
type Config struct {
	Knock        KnockParameters
	Database     DatabaseParameters
	EmailDomains []string
	LogDir       string
}

func (c *Config) String() string {
	return fmt.Sprintf("knock=%s parser=%s timeout=%s db=%s@%s:%d/%s domains=%s logs=%s",
		c.Knock.ApiUrl, c.Knock.Parser, c.Knock.Timeout,
		c.Database.User, c.Database.Host, c.Database.Port, c.Database.Name,
		strings.Join(c.EmailDomains, ","), c.LogDir)
}

// LookupFunc matches os.LookupEnv
type LookupFunc func(string) (string, bool)

// LoadConfig builds a Config from environment variables. Missing required
// variables are reported together.
func LoadConfig(lookup LookupFunc) (config *Config, err error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var get = func(name string) string {
		var v, _ = lookup(name)
		return strings.TrimSpace(v)
	}

	var missing []string
	var require = func(name string) (value string) {
		if value = get(name); len(value) == 0 {
			missing = append(missing, name)
		}
		return
	}

	var c = &Config{
		Knock: KnockParameters{
			ApiUrl:  get(EnvApiUrl),
			ApiKey:  require(EnvApiKey),
			Timeout: DefaultHttpTimeout,
			Parser:  strings.ToLower(get(EnvParser)),
		},
		Database: DatabaseParameters{
			Driver:   "postgres",
			Host:     require(EnvDbHost),
			Port:     DefaultDbPort,
			Name:     require(EnvDbName),
			User:     require(EnvDbUser),
			Password: require(EnvDbPassword),
			SslMode:  get(EnvDbSslMode),
		},
		LogDir: get(EnvLogDir),
	}
	if len(missing) > 0 {
		err = fmt.Errorf("%w: environment variable(s) %s not set", ErrConfigurationMissing, strings.Join(missing, ", "))
		return
	}

	if len(c.Knock.ApiUrl) == 0 {
		c.Knock.ApiUrl = DefaultApiUrl
	}
	if _, er1 := url.ParseRequestURI(c.Knock.ApiUrl); er1 != nil {
		err = fmt.Errorf("%w: %s: %s", ErrConfigurationInvalid, EnvApiUrl, er1)
		return
	}
	if len(c.Knock.Parser) == 0 {
		c.Knock.Parser = ParserStructured
	}
	if v := get(EnvHttpTimeout); len(v) > 0 {
		var d time.Duration
		if d, err = time.ParseDuration(v); err != nil || d <= 0 {
			err = fmt.Errorf("%w: %s must be a positive duration, got \"%s\"", ErrConfigurationInvalid, EnvHttpTimeout, v)
			return
		}
		c.Knock.Timeout = d
	}
	if v := get(EnvDbPort); len(v) > 0 {
		var port int
		if port, err = strconv.Atoi(v); err != nil || port <= 0 || port > 65535 {
			err = fmt.Errorf("%w: %s must be a TCP port, got \"%s\"", ErrConfigurationInvalid, EnvDbPort, v)
			return
		}
		c.Database.Port = port
	}
	if len(c.LogDir) == 0 {
		c.LogDir = DefaultLogDir
	}

	var domains = get(EnvEmailDomains)
	if len(domains) == 0 {
		domains = DefaultEmailDomains
	}
	c.EmailDomains = normalizeDomains(splitValues(domains))

	config = c
	return
}

// normalizeDomains folds case and makes sure every suffix anchors on "@" or "."
func normalizeDomains(domains []string) (result []string) {
	var fold = cases.Fold()
	var seen = NewSet[string]()
	for _, d := range domains {
		d = fold.String(d)
		if !strings.HasPrefix(d, "@") && !strings.HasPrefix(d, ".") {
			d = "@" + d
		}
		if seen.Has(d) {
			continue
		}
		seen.Add(d)
		result = append(result, d)
	}
	return
}
