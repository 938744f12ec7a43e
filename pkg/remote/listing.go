package remote

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"photobackup/pkg/shared"
)

const maxListingLine = 1 << 20

// ParseListing reads `rclone ls` style output: one `<size> <name>` record per
// line, padded with leading spaces. Blank lines are skipped. Any other line
// that lacks a name or whose size is not an integer fails the whole parse so
// that a half-understood listing never replaces a good cache.
func ParseListing(r io.Reader) ([]shared.CacheEntry, error) {
	entries := make([]shared.CacheEntry, 0)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxListingLine)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		entry, ok, err := parseListingLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}

	return entries, nil
}

func parseListingLine(line string) (shared.CacheEntry, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return shared.CacheEntry{}, false, nil
	}

	sep := strings.IndexAny(line, " \t")
	if sep < 0 {
		return shared.CacheEntry{}, false, fmt.Errorf("missing name in %q", line)
	}

	size, err := strconv.ParseInt(line[:sep], 10, 64)
	if err != nil {
		return shared.CacheEntry{}, false, fmt.Errorf("invalid size in %q: %w", line, err)
	}

	// Only the separator run is dropped; names keep inner spaces.
	name := strings.TrimLeft(line[sep:], " \t")
	if name == "" {
		return shared.CacheEntry{}, false, fmt.Errorf("missing name in %q", line)
	}

	return shared.CacheEntry{Name: name, Size: size}, true, nil
}
