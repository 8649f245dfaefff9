// Package notifications forwards update attempt events to notification services.
// It implements types.EventObserver on top of Shoutrrr: download start, completion
// and failure are rendered through a template and sent to every configured URL.
//
// Key components:
//   - Notifier: Observer queuing rendered messages for a sender goroutine.
//   - Templates: Built-in message templates (common_templates.go).
//   - Data: Template data model (model.go).
//
// Usage example:
//
//	notifier, err := notifications.NewNotifier(urls, notifications.StaticData{Host: "kiosk"}, "", 0)
//	if err != nil {
//	    logrus.WithError(err).Fatal("Failed to initialize notifications")
//	}
//	defer notifier.Close()
//	controller.SetObserver(notifier)
//
// Progress events are logged at trace level only; they are never sent.
package notifications
