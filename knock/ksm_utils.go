package knock

import (
	"fmt"
	ksm "github.com/keeper-security/secrets-manager-go/core"
	"net/url"
	"strings"
)

const ksmDatabasePasswordLabel = "Database Password"

// KeeperSecrets holds the credentials found in a Keeper record
type KeeperSecrets struct {
	ApiKey     string
	DbPassword string
}

// Lookup layers the Keeper secrets under an environment lookup: a variable set
// in the environment always wins.
func (ks *KeeperSecrets) Lookup(env LookupFunc) LookupFunc {
	return func(name string) (value string, ok bool) {
		if value, ok = env(name); ok && len(strings.TrimSpace(value)) > 0 {
			return
		}
		switch name {
		case EnvApiKey:
			value = ks.ApiKey
		case EnvDbPassword:
			value = ks.DbPassword
		}
		ok = len(value) > 0
		return
	}
}

// LoadKeeperSecrets reads the Knock record shared to the KSM application
// configBase64: KSM application configuration
// recordUid: optional record UID to narrow the lookup
func LoadKeeperSecrets(configBase64 string, recordUid string) (secrets *KeeperSecrets, err error) {
	var config = ksm.NewMemoryKeyValueStorage(configBase64)
	var sm = ksm.NewSecretsManager(&ksm.ClientOptions{
		Config: config,
	})

	var filter []string
	if len(recordUid) > 0 {
		filter = append(filter, recordUid)
	}

	var records []*ksm.Record
	if records, err = sm.GetSecrets(filter); err != nil {
		err = fmt.Errorf("%w: keeper secrets manager: %w", ErrConfigurationMissing, err)
		return
	}

	var knockRecord *ksm.Record
	for _, r := range records {
		if isKnockRecord(r.Type(), r.GetFieldValueByType("url")) {
			knockRecord = r
			break
		}
	}
	if knockRecord == nil {
		err = fmt.Errorf("%w: Knock record was not found. Make sure the login record has a knock.app URL and is shared to KSM application", ErrConfigurationMissing)
		return
	}

	secrets = &KeeperSecrets{
		ApiKey: knockRecord.Password(),
	}
	var fields = knockRecord.GetCustomFieldsByLabel(ksmDatabasePasswordLabel)
	if len(fields) > 0 {
		secrets.DbPassword = fieldValue(fields[0])
	}
	return
}

func isKnockRecord(recordType string, webUrl string) bool {
	if recordType != "login" || len(webUrl) == 0 {
		return false
	}
	var uri, err = url.Parse(webUrl)
	if err != nil {
		return false
	}
	var host = strings.ToLower(uri.Hostname())
	return host == "knock.app" || strings.HasSuffix(host, ".knock.app")
}

func fieldValue(field map[string]any) (result string) {
	switch v := field["value"].(type) {
	case string:
		result = v
	case []any:
		if len(v) > 0 {
			result, _ = toString(v[0])
		}
	}
	return
}
