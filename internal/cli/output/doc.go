// Package output renders CLI results.
//
// A Formatter turns response data into table, JSON, or YAML text.
// Table mode converts structs and slices through reflection, honoring
// json tags for column names and `table:"wide"` tags for columns that
// only appear in wide mode. ProgressBar renders transfer and restore
// progress on a terminal.
package output
