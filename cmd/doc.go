// Package cmd contains the command-line interface (CLI) definitions and execution logic for updateflow.
// It provides the root command, which connects to the update-delivery service, drives one update
// flow for the process and forwards host lifecycle signals to it.
//
// Key components:
//   - rootCmd: Root command for the update flow, the HTTP API and the resume schedule.
//   - hostObserver: Logs attempt events and forwards them to notifications.
//
// Signals:
//   - SIGINT, SIGTERM: Destroy the host and exit.
//   - SIGUSR1: Simulate a foreground resume.
//
// Usage example:
//
//	cmd.Execute()
package cmd
