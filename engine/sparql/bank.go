package sparql

import (
	"bufio"
	"fmt"
	"strings"
)

const tagPrefix = "# tag:"

// parseBank splits a query file on "# tag: name" lines. Everything up to
// the next tag, comments included, belongs to the named query.
func parseBank(src string) (map[string]string, error) {
	bank := map[string]string{}
	var (
		name string
		body strings.Builder
	)
	flush := func() error {
		if name == "" {
			return nil
		}
		text := strings.TrimSpace(body.String())
		if text == "" {
			return fmt.Errorf("query %q is empty", name)
		}
		if _, dup := bank[name]; dup {
			return fmt.Errorf("query %q defined twice", name)
		}
		bank[name] = text
		body.Reset()
		return nil
	}

	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := sc.Text()
		if tag, ok := strings.CutPrefix(strings.TrimSpace(line), tagPrefix); ok {
			if err := flush(); err != nil {
				return nil, err
			}
			name = strings.TrimSpace(tag)
			if name == "" {
				return nil, fmt.Errorf("tag without a name")
			}
			continue
		}
		if name == "" {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return bank, nil
}
