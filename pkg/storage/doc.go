// Package storage writes search result pages to the out box directory.
//
// Each page becomes one file, {name}.json or {name}.json.gz when
// compression is on. Writes are atomic (temporary file, then rename) and a
// name already present on disk or written earlier in the session is never
// overwritten; {name}_1, {name}_2, ... are tried instead.
//
//	manager, err := storage.NewManager(cfg.Search.OutBox)
//	path, err := manager.SavePage("weather_20131018060000_20131019060000", body, true)
//
// ListPages and ReadPage read the directory back, transparently
// decompressing gzipped pages.
package storage
