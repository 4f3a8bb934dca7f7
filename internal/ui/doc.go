// Package ui renders CLI output: a small lipgloss palette, progress lines for a
// running export, the final summary and tables for the history and Tidal search commands.
//
// Styles degrade to plain text when the output is not a color terminal.
package ui
