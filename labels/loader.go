package labels

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadFile reads a newline-delimited label file into a Set. Blank lines and
// lines starting with '#' are skipped; surrounding whitespace is trimmed.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open label file %s", path)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read label file %s", path)
	}
	if len(names) == 0 {
		return nil, errors.Errorf("label file %s contains no labels", path)
	}

	return NewSet(names), nil
}
