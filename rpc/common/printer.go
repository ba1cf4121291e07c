package common

import (
	"fmt"
	"strings"
)

// ConfigPrinter renders a configuration as upper case section titles followed by
// aligned "name: value" lines. It is what the commands print on startup.
type ConfigPrinter struct {
	sb strings.Builder
}

// Section starts a new titled block
func (p *ConfigPrinter) Section(title string) {
	fmt.Fprintf(&p.sb, "\n%s\n", strings.ToUpper(title))
}

// Field adds one aligned line to the current block
func (p *ConfigPrinter) Field(name string, value any) {
	fmt.Fprintf(&p.sb, "  %-22s: %v\n", name, value)
}

// Line adds free form text, indented like a field
func (p *ConfigPrinter) Line(format string, args ...any) {
	p.sb.WriteString("  ")
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteString("\n")
}

func (p *ConfigPrinter) String() string {
	return p.sb.String()
}
