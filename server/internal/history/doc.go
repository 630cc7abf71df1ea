// Package history persists the shift store's mutation journal in SQLite so a
// restarted server can rebuild its live containers. Entries are replayed in
// append order through store.Apply and pruned by retention, one container at
// a time.
package history
