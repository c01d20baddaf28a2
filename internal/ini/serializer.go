package ini

import (
	"strings"
)

// Serialize renders doc so that Parse reproduces its keys, values and
// sections. Comments and blank-line layout are not preserved. Top-level
// properties are written before any section, otherwise a re-parse would
// read them as members of the preceding section.
func Serialize(doc *Document) string {
	var b strings.Builder

	for _, key := range doc.Properties() {
		writeProperty(&b, key, doc.values[key])
	}

	for _, name := range doc.Sections() {
		b.WriteString("\n[")
		b.WriteString(name)
		b.WriteString("]\n")

		section := doc.sections[name]
		for _, key := range section.keys {
			writeProperty(&b, key, section.values[key])
		}
	}

	return b.String()
}

func writeProperty(b *strings.Builder, key string, value *string) {
	b.WriteString(key)
	if value != nil {
		b.WriteString(" = ")
		b.WriteString(formatValue(*value))
	}
	b.WriteByte('\n')
}

// formatValue indents every line after the first with a tab so the
// continuation rule rebuilds the multiline value.
func formatValue(value string) string {
	return strings.Join(lineBreak.Split(value, -1), "\n\t")
}

func joinList(values []string) string {
	return strings.Join(values, " ")
}
