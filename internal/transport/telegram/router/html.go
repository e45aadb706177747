package router

import "html"

// Reply text is sent with ParseMode=HTML, so user-derived content must be
// escaped before interpolation.

func esc(s string) string { return html.EscapeString(s) }

func b(s string) string { return "<b>" + esc(s) + "</b>" }

func code(s string) string { return "<code>" + esc(s) + "</code>" }
