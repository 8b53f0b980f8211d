package router

import "regexp"

// temporalPattern matches explicit or relative time references.
var temporalPattern = regexp.MustCompile(`(?i)` +
	`\b(19|20)\d{2}\b` +
	`|\bq[1-4]\b|\b(first|second|third|fourth|1st|2nd|3rd|4th)\s+quarter\b` +
	`|\b(jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t(ember)?)?|oct(ober)?|nov(ember)?|dec(ember)?)\b` +
	`|\b\d{4}-\d{2}(-\d{2})?\b` +
	`|\b(last|this|past|previous|current|next)\s+(\d+\s+)?(days?|weeks?|months?|quarters?|years?|fiscal\s+year)\b` +
	`|\bago\b|\bsince\b|\bbetween\b|\byesterday\b|\btoday\b|\bytd\b|\byear[- ]to[- ]date\b|\brecent(ly)?\b`)

// hasTemporalLanguage reports whether text refers to a point or span in time.
func hasTemporalLanguage(text string) bool {
	return temporalPattern.MatchString(text)
}
