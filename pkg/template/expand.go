// Package template expands placeholders in export file names.
package template

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Expand replaces placeholders in text using the time now.
//
// Supported placeholders:
//
//	{date}      - date as YYYY-MM-DD
//	{time}      - time as HHMMSS
//	{datetime}  - date and time as YYYYMMDD-HHMMSS
//	{unix}      - Unix timestamp
//	{hostname}  - host name without its domain
//
// Values in vars override the built-in placeholders. Unknown placeholders are
// left as they are.
func Expand(text string, now time.Time, vars map[string]string) string {
	if !strings.Contains(text, "{") {
		return text
	}

	now = now.UTC()
	placeholders := map[string]string{
		"date":     now.Format("2006-01-02"),
		"time":     now.Format("150405"),
		"datetime": now.Format("20060102-150405"),
		"unix":     fmt.Sprintf("%d", now.Unix()),
		"hostname": "unknown",
	}
	if h, err := os.Hostname(); err == nil {
		placeholders["hostname"] = strings.Split(h, ".")[0]
	}
	for k, v := range vars {
		placeholders[k] = v
	}

	pairs := make([]string, 0, 2*len(placeholders))
	for k, v := range placeholders {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
