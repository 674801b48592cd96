// Shared helpers for fieldsync CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openchw/fieldsync/internal/allocator"
	"github.com/openchw/fieldsync/internal/connectivity"
	"github.com/openchw/fieldsync/internal/engine"
	"github.com/openchw/fieldsync/internal/remote"
	"github.com/openchw/fieldsync/internal/sqlite"
	"github.com/openchw/fieldsync/pkg/types"
)

// validTableNamesStr is a comma-separated list of valid table names for
// error output.
var validTableNamesStr = strings.Join([]string{
	types.TablePatients,
	types.TableChildren,
	types.TableAppointments,
}, ", ")

// app bundles the wired components for one CLI invocation. Close releases
// the store and stops the monitor.
type app struct {
	store   *sqlite.Store
	client  *remote.Client
	monitor *connectivity.Monitor
	writer  *engine.Writer
	engine  *engine.Engine
}

// openApp opens the store and wires the client, monitor, allocator,
// writer, and engine from cliConfig. The monitor is not started; callers
// either probe once or run the polling loop themselves.
func openApp() (*app, error) {
	store := sqlite.New()
	if err := store.Open(cliConfig.DataDir); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	logger := slog.Default()
	client := remote.New(cliConfig.ServerURL, cliConfig.RequestTimeout, logger)
	monitor := connectivity.NewMonitor(
		connectivity.ProbeFunc(client.Ping),
		cliConfig.ProbeInterval,
		cliConfig.RequestTimeout,
		logger,
	)
	alloc := allocator.New(client, logger)
	sink := engine.NewSlogSink(logger)

	return &app{
		store:   store,
		client:  client,
		monitor: monitor,
		writer:  engine.NewWriter(store, client, alloc, monitor, logger),
		engine:  engine.New(store, client, monitor, sink, cliConfig, logger),
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
}

// checkTableArg validates a table name argument.
func checkTableArg(name string) error {
	if !types.KnownTable(name) {
		return fmt.Errorf("%w %q (valid: %s)", types.ErrTableUnknown, name, validTableNamesStr)
	}
	return nil
}

// parseFieldArgs converts key=value arguments into a field map. Values
// that parse as JSON keep their structure; everything else is a string.
func parseFieldArgs(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("%w: %q (expected key=value)", types.ErrInvalidFields, arg)
		}
		var parsed any
		if err := json.Unmarshal([]byte(parts[1]), &parsed); err != nil {
			parsed = parts[1]
		}
		fields[parts[0]] = parsed
	}
	return fields, nil
}

// printRecord writes one record as text or JSON per the --json flag.
func printRecord(rec *types.Record) error {
	if flagJSON {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("%s\t%s\t%v\n", rec.DisplayID, rec.SyncState, rec.Fields)
	return nil
}
