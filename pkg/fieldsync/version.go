// Package fieldsync exposes build metadata for the fieldsync tool.
package fieldsync

// Version is the current fieldsync release.
const Version = "0.4.0"
