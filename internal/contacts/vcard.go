package contacts

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadVCard parses an address book export (vCard 2.1, 3.0 or 4.0) and returns the
// FN and TEL values of every card. Other properties are ignored.
func ReadVCard(r io.Reader) ([]RawContact, error) {
	lines, err := unfold(r)
	if err != nil {
		return nil, err
	}

	var (
		out    []RawContact
		cur    *RawContact
		inCard bool
	)
	for _, line := range lines {
		name, value, ok := splitProperty(line)
		if !ok {
			continue
		}
		switch name {
		case "BEGIN":
			if strings.EqualFold(value, "VCARD") {
				cur = &RawContact{}
				inCard = true
			}
		case "END":
			if strings.EqualFold(value, "VCARD") && inCard {
				out = append(out, *cur)
				cur = nil
				inCard = false
			}
		case "FN":
			if inCard {
				cur.DisplayName = unescape(value)
			}
		case "TEL":
			if inCard {
				cur.Phones = append(cur.Phones, strings.TrimPrefix(value, "tel:"))
			}
		}
	}
	if inCard {
		return out, fmt.Errorf("vcard: unterminated card")
	}
	return out, nil
}

// unfold joins continuation lines (leading space or tab) onto the previous line.
func unfold(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("vcard: read: %w", err)
	}
	return lines, nil
}

// splitProperty returns the upper-cased property name (group and parameters dropped)
// and the raw value.
func splitProperty(line string) (string, string, bool) {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	name, _, _ := strings.Cut(head, ";")
	if _, after, found := strings.Cut(name, "."); found {
		name = after
	}
	return strings.ToUpper(strings.TrimSpace(name)), strings.TrimSpace(value), true
}

var unescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, " ", `\N`, " ", `\\`, `\`)

func unescape(s string) string {
	return unescaper.Replace(s)
}
