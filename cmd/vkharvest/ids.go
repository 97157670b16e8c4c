package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	errs "vkharvest/pkg/errors"
)

// readIdentifierFile loads user identifiers from path
func readIdentifierFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, "open identifier file", err)
	}
	defer f.Close()

	ids, err := parseIdentifiers(f)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeConfig, path, err)
	}
	if len(ids) == 0 {
		return nil, errs.Newf(errs.ErrorTypeConfig, "%s holds no identifiers", path)
	}
	return ids, nil
}

// parseIdentifiers accepts one identifier per line or comma separated lists.
// Blank lines and lines starting with # are skipped.
func parseIdentifiers(r io.Reader) ([]int64, error) {
	var ids []int64
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		for _, field := range strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == ';'
		}) {
			id, err := strconv.ParseInt(field, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("line %d: %q is not a user identifier", line, field)
			}
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
