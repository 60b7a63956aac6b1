package knock_user_sync

import (
	"context"
	"fmt"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"go.uber.org/zap"
	"net/http"
	"rentpure.com/knock-sync/knock"
)

func init() {
	// Register an HTTP function with the Functions Framework
	functions.HTTP("KnockSyncHttp", knockSyncHttp)
	functions.CloudEvent("KnockSyncPubSub", knockSyncPubSub)
}

func runKnockSync(ctx context.Context) (syncStat *knock.SyncStat, err error) {
	var logger *zap.Logger
	if logger, err = zap.NewProduction(); err != nil {
		return
	}
	defer func() { _ = logger.Sync() }()

	var config *knock.Config
	if config, err = knock.ConfigFromEnvironment(); err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
		return
	}
	if syncStat, err = knock.Run(ctx, config, knock.Options{}, logger); err != nil {
		logger.Error("Knock sync failed", zap.Error(err))
	}
	return
}

// knockSyncHttp is an HTTP handler
func knockSyncHttp(w http.ResponseWriter, r *http.Request) {
	var syncStat, err = runKnockSync(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Knock sync failed: %s", err), http.StatusInternalServerError)
		return
	}
	knock.PrintStatistics(w, syncStat)
}

// knockSyncPubSub consumes a CloudEvent message; the payload is ignored.
func knockSyncPubSub(ctx context.Context, _ event.Event) (err error) {
	_, err = runKnockSync(ctx)
	return
}
