package knock

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"os"
	"strings"
)

type Options struct {
	DryRun bool
}

type KnockSync struct {
	directory IDirectory
	source    ISourceStore
	runLog    *RunLog
	logger    *zap.Logger
	options   Options
}

func NewKnockSync(directory IDirectory, source ISourceStore, runLog *RunLog, logger *zap.Logger, options Options) *KnockSync {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KnockSync{
		directory: directory,
		source:    source,
		runLog:    runLog,
		logger:    logger,
		options:   options,
	}
}

// Sync sends the source users missing from the directory in one bulk identify call.
// Every stage failure ends the run; an empty source result ends it successfully.
func (ks *KnockSync) Sync(ctx context.Context) (syncStat *SyncStat, err error) {
	var stat = &SyncStat{DryRun: ks.options.DryRun}

	var remoteUsers []*RemoteUser
	var more bool
	if remoteUsers, more, err = ks.directory.Users(ctx); err != nil {
		return
	}
	if more {
		ks.logger.Warn("Knock user listing has more pages; only the first page is used for exclusion")
	}
	stat.Fetched = len(remoteUsers)
	ks.logger.Info("Fetched Knock users", zap.Int("count", stat.Fetched))
	if err = ks.runLog.WriteDirectory(remoteUsers); err != nil {
		return
	}

	var exclude = ExclusionSet(remoteUsers)
	stat.Excluded = len(exclude)

	var sourceUsers []*SourceUser
	if sourceUsers, err = ks.source.Users(ctx, exclude); err != nil {
		return
	}
	stat.Queried = len(sourceUsers)
	ks.logger.Info("Queried source users", zap.Int("count", stat.Queried), zap.Int("excluded", stat.Excluded))
	if err = ks.runLog.WriteSource(sourceUsers); err != nil {
		return
	}

	var missing = make([]*SourceUser, 0, len(sourceUsers))
	for _, u := range sourceUsers {
		if exclude.Has(u.Id) {
			ks.logger.Debug("Skipping user already in Knock", zap.String("id", u.Id))
			continue
		}
		missing = append(missing, u)
	}
	if len(missing) == 0 {
		ks.logger.Info("No users to sync")
		syncStat = stat
		return
	}

	var payload *Payload
	if payload, err = BuildPayload(missing); err != nil {
		return
	}
	stat.Submitted = len(payload.Users)

	if ks.options.DryRun {
		var data []byte
		if data, err = json.MarshalIndent(payload, "", "  "); err != nil {
			return
		}
		stat.Response = string(data)
		ks.logger.Info("Dry run: bulk identify skipped", zap.Int("count", stat.Submitted))
		syncStat = stat
		return
	}

	if stat.Response, err = ks.directory.BulkIdentify(ctx, payload); err != nil {
		return
	}
	ks.logger.Info("Submitted users to Knock", zap.Int("count", stat.Submitted))
	syncStat = stat
	return
}

// ConfigFromEnvironment loads the configuration from the process environment,
// filling missing credentials from Keeper Secrets Manager when it is configured.
func ConfigFromEnvironment() (config *Config, err error) {
	return configFromLookup(os.LookupEnv, LoadKeeperSecrets)
}

type secretsLoader func(configBase64 string, recordUid string) (*KeeperSecrets, error)

// configFromLookup asks Keeper only when the API key or the database password
// is absent from the environment.
func configFromLookup(lookup LookupFunc, loadSecrets secretsLoader) (config *Config, err error) {
	var get = func(name string) string {
		var v, _ = lookup(name)
		return strings.TrimSpace(v)
	}
	var configBase64 = get(EnvKsmConfig)
	if len(configBase64) > 0 && (len(get(EnvApiKey)) == 0 || len(get(EnvDbPassword)) == 0) {
		var secrets *KeeperSecrets
		if secrets, err = loadSecrets(configBase64, get(EnvKsmRecordUid)); err != nil {
			return
		}
		lookup = secrets.Lookup(lookup)
	}
	config, err = LoadConfig(lookup)
	return
}

// Run wires the Knock endpoint, the source store and the run log, then syncs once.
func Run(ctx context.Context, config *Config, options Options, logger *zap.Logger) (syncStat *SyncStat, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var parser IDirectoryParser
	if parser, err = NewDirectoryParser(config.Knock.Parser); err != nil {
		return
	}
	logger.Debug("Configuration", zap.Stringer("config", config), zap.String("parser", parser.Name()))

	var db, er1 = OpenSourceDatabase(config.Database)
	if er1 != nil {
		err = er1
		return
	}
	defer func() { _ = db.Close() }()

	var directory = NewKnockEndpoint(config.Knock, parser)
	var source = NewPostgresEndpoint(db, config.EmailDomains, logger)
	var runLog = NewRunLog(config.LogDir)
	logger.Debug("Starting sync", zap.String("run", runLog.RunId()))

	var sync = NewKnockSync(directory, source, runLog, logger, options)
	if syncStat, err = sync.Sync(ctx); err != nil {
		err = fmt.Errorf("run %s: %w", runLog.RunId(), err)
	}
	return
}
