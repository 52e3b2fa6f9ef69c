package corpus

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Grounded on normalize_fr_code_markdown.py / normalize_eu_law_markdown.py:
// both scripts walk a directory of corpus text, rewrite roman-numeral
// section headers and numbered-item markers into a single canonical
// spacing so the retriever's regex-based carving has a consistent anchor
// to match against, and leave everything else untouched. The two scripts
// differ only in which directory they target and in skipping markdown
// heading lines ("#...") — this port folds both into one idempotent
// pass and always skips heading lines, since corpus fixtures may be
// plain .txt or .md.

var romanSuffixes = []string{
	"bis", "ter", "quater", "quinquies", "sexies", "septies", "octies", "nonies", "decies",
}

var romanHeaderRE = regexp.MustCompile(
	`^(?P<indent>\s*)(?P<roman>[IVXLCDM]+)(?:\s+(?P<suffix>` + strings.Join(romanSuffixes, "|") + `))?\s*(?:\.\s*[\-–]|[.\-–])\s*(?P<rest>.*)$`,
)

var numberedItemRE = regexp.MustCompile(`^(?P<indent>\s*)(?P<num>\d{1,2})(?P<marker>[°)\.])\s*(?P<rest>\S.*)$`)

// NormalizeStats reports what a normalization pass changed, mirroring
// the "Done. Files scanned: N, changed: N, roman headers normalized: N,
// item spacings normalized: N" summary line both scripts print.
type NormalizeStats struct {
	FilesScanned  int
	FilesChanged  int
	RomanHeaders  int
	ItemSpacings  int
	ChangedFiles  []string
}

// NormalizeText applies the roman-header and numbered-item-spacing
// normalizations line by line, trims trailing whitespace on every line,
// and appends a trailing newline when the text does not already end with
// one (existing trailing blank lines are kept).
func NormalizeText(text string) (normalized string, romanChanges, itemChanges int) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t\r")

		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			if newLine, changed := normalizeRomanHeader(line); changed {
				romanChanges++
				line = newLine
			}
			if newLine, changed := normalizeNumberedItemSpacing(line); changed {
				itemChanges++
				line = newLine
			}
		}
		out = append(out, line)
	}

	normalized = strings.Join(out, "\n")
	if !strings.HasSuffix(normalized, "\n") {
		normalized += "\n"
	}
	return normalized, romanChanges, itemChanges
}

func normalizeRomanHeader(line string) (string, bool) {
	m := romanHeaderRE.FindStringSubmatch(line)
	if m == nil {
		return line, false
	}
	groups := namedGroups(romanHeaderRE, m)
	roman := groups["roman"]
	if roman == "" {
		return line, false
	}

	header := roman
	if suffix := groups["suffix"]; suffix != "" {
		header = header + " " + suffix
	}
	newLine := groups["indent"] + header + ". - " + strings.TrimLeft(groups["rest"], " \t")
	if newLine == line {
		return line, false
	}
	return newLine, true
}

func normalizeNumberedItemSpacing(line string) (string, bool) {
	m := numberedItemRE.FindStringSubmatch(line)
	if m == nil {
		return line, false
	}
	groups := namedGroups(numberedItemRE, m)
	newLine := groups["indent"] + groups["num"] + groups["marker"] + " " + groups["rest"]
	if newLine == line {
		return line, false
	}
	return newLine, true
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		groups[name] = match[i]
	}
	return groups
}

// NormalizeDir rewrites every .md and .txt file under root in place,
// applying NormalizeText, and returns aggregate stats. Files that fail
// to read are skipped (recorded neither as scanned nor as an error) so
// one bad file doesn't abort the whole pass, matching both scripts'
// try/except-and-continue behavior.
func NormalizeDir(root string) (NormalizeStats, error) {
	var stats NormalizeStats

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		if strings.HasPrefix(filepath.Base(path), ".") {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}

		stats.FilesScanned++
		normalized, romanChanges, itemChanges := NormalizeText(string(data))
		if normalized == string(data) {
			return nil
		}

		if writeErr := os.WriteFile(path, []byte(normalized), 0o644); writeErr != nil {
			return fmt.Errorf("corpus: writing normalized file %s: %w", path, writeErr)
		}
		stats.FilesChanged++
		stats.RomanHeaders += romanChanges
		stats.ItemSpacings += itemChanges
		stats.ChangedFiles = append(stats.ChangedFiles, path)
		return nil
	})
	if err != nil {
		return stats, err
	}

	sort.Strings(stats.ChangedFiles)
	return stats, nil
}

// Summary renders the one-line report both normalize scripts print.
func (s NormalizeStats) Summary() string {
	return fmt.Sprintf(
		"Done. Files scanned: %d, changed: %d, roman headers normalized: %d, item spacings normalized: %d",
		s.FilesScanned, s.FilesChanged, s.RomanHeaders, s.ItemSpacings,
	)
}
