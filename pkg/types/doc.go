// Package types defines the data model and collaborator contracts of the update flow.
// It provides strategies, update metadata snapshots, configuration, progress events,
// and the interfaces implemented by the update service, the host and observers.
//
// Key components:
//   - Strategy / StrategySet: Silent and blocking delivery and the set a service allows.
//   - UpdateMetadata: Read-only snapshot returned by a query.
//   - UpdateConfiguration: Caller preferences, fixed once a flow starts.
//   - UpdateService: External update-delivery service.
//   - Host: Explicit host handle passed to operations that present UI.
//   - Observer / EventObserver: Consumer-facing callbacks.
//
// Usage example:
//
//	cfg := types.UpdateConfiguration{
//	    StrategyPreference:     types.StrategySilent,
//	    StalenessThresholdDays: types.Days(5),
//	}
//	if meta.IsStrategyAllowed(types.StrategyBlocking) {
//	    logrus.Info("Blocking updates permitted")
//	}
package types
